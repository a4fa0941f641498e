package realtime

import "sync"

// Subscription is the handle returned by Subscribe and OnStatus. Holders
// must call Cancel when they no longer want deliveries; re-registering
// without cancelling the previous handle is the only way to receive
// duplicates, and each handle cancels exactly its own registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel func in a handle. Exported so channel
// fakes and fan-out helpers can hand out the same handle type.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel deregisters the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}
