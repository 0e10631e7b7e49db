package feed

import (
	"context"
	"fmt"
	"sync"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
)

// MemoryFeed is an in-process PriceFeed driven by Push. Used for paper
// sessions and tests.
type MemoryFeed struct {
	mu           sync.Mutex
	subs         map[models.SessionKey]*memSubscription
	subscribeErr error
	subscribes   map[models.SessionKey]int
}

func NewMemory() *MemoryFeed {
	return &MemoryFeed{
		subs:       make(map[models.SessionKey]*memSubscription),
		subscribes: make(map[models.SessionKey]int),
	}
}

var _ drepo.PriceFeed = (*MemoryFeed)(nil)

func (f *MemoryFeed) Subscribe(ctx context.Context, key models.SessionKey) (drepo.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes[key]++
	if f.subscribeErr != nil {
		return nil, fmt.Errorf("memory feed %s: %w", key, f.subscribeErr)
	}
	s := &memSubscription{
		feed:    f,
		key:     key,
		updates: make(chan models.Candle, 64),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	f.subs[key] = s
	return s, nil
}

// Push delivers c to the current subscriber of key. It reports false when
// nobody is subscribed.
func (f *MemoryFeed) Push(key models.SessionKey, c models.Candle) bool {
	f.mu.Lock()
	s, ok := f.subs[key]
	f.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.updates <- c:
		return true
	case <-s.done:
		return false
	}
}

// Fail terminates the current subscription of key with err.
func (f *MemoryFeed) Fail(key models.SessionKey, err error) bool {
	f.mu.Lock()
	s, ok := f.subs[key]
	if ok {
		delete(f.subs, key)
	}
	f.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.errs <- err:
	default:
	}
	return true
}

// SetSubscribeError makes every later Subscribe call fail with err (nil resets).
func (f *MemoryFeed) SetSubscribeError(err error) {
	f.mu.Lock()
	f.subscribeErr = err
	f.mu.Unlock()
}

// Subscribed reports whether key currently has a live subscriber.
func (f *MemoryFeed) Subscribed(key models.SessionKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[key]
	return ok
}

// SubscribeCalls returns how many times key was subscribed, including failures.
func (f *MemoryFeed) SubscribeCalls(key models.SessionKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[key]
}

type memSubscription struct {
	feed    *MemoryFeed
	key     models.SessionKey
	updates chan models.Candle
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func (s *memSubscription) Updates() <-chan models.Candle { return s.updates }
func (s *memSubscription) Errors() <-chan error          { return s.errs }

func (s *memSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.feed.mu.Lock()
		if cur, ok := s.feed.subs[s.key]; ok && cur == s {
			delete(s.feed.subs, s.key)
		}
		s.feed.mu.Unlock()
	})
	return nil
}
