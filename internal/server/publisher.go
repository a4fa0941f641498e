package server

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher fans an encoded frame out to every member of a room, locally or
// through Redis when several server instances share the conversation state.
type Publisher interface {
	Publish(roomID string, payload []byte)
	Close() error
}

type localPublisher struct {
	hub *Hub
}

func newLocalPublisher(hub *Hub) *localPublisher {
	return &localPublisher{hub: hub}
}

func (p *localPublisher) Publish(roomID string, payload []byte) {
	p.hub.Deliver(roomID, payload)
}

func (p *localPublisher) Close() error { return nil }

const redisChannelPrefix = "chat."

// redisPublisher routes frames through a Redis pub/sub channel per room. The
// psubscribe loop feeds every received frame back into the local hub, so a
// frame published on any instance reaches the clients of all of them.
type redisPublisher struct {
	client *redis.Client
	hub    *Hub
	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func newRedisPublisher(addr, password string, hub *Hub, logger zerolog.Logger) *redisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	p := &redisPublisher{
		client: client,
		hub:    hub,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.subscribeLoop(ctx)
	return p
}

func (p *redisPublisher) Publish(roomID string, payload []byte) {
	err := p.client.Publish(context.Background(), redisChannelPrefix+roomID, payload).Err()
	if err != nil {
		p.logger.Error().Str("room", roomID).Err(err).Msg("redis publish failed")
	}
}

func (p *redisPublisher) subscribeLoop(ctx context.Context) {
	defer close(p.done)

	sub := p.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			roomID := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
			p.hub.Deliver(roomID, []byte(msg.Payload))
		}
	}
}

func (p *redisPublisher) Close() error {
	p.cancel()
	<-p.done
	return p.client.Close()
}
