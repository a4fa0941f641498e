package server

import (
	"sync"

	"github.com/rs/zerolog"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager funnels request handling through a bounded worker
// pool so a burst of REST traffic cannot starve the socket pumps.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

func NewRequestQueueManager(queueSize, maxWorkers int, logger zerolog.Logger) *RequestQueueManager {
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		logger:     logger,
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			rqm.logger.Debug().Int("worker", workerID).Msg("worker started")
			for job := range rqm.JobQueue {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			rqm.logger.Debug().Int("worker", workerID).Msg("worker stopped")
		}(i)
	}
}

func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.JobQueue <- job
}

func (rqm *RequestQueueManager) Shutdown() {
	close(rqm.JobQueue)
	rqm.wg.Wait()
}
