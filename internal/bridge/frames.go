package bridge

import (
	"context"
	"sync"
	"time"
)

// FrameRetry bounds frame resolution while the target frame is not known yet
type FrameRetry struct {
	Attempts int
	Interval time.Duration
}

// DefaultFrameRetry polls every 200ms for up to 5s
var DefaultFrameRetry = FrameRetry{Attempts: 25, Interval: 200 * time.Millisecond}

// Resolve calls lookup until it reports a frame other than parent
// When attempts run out the parent scope is returned
func (r FrameRetry) Resolve(ctx context.Context, parent Frame, lookup func(context.Context) (Frame, bool, error)) (Frame, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		f, ok, err := lookup(ctx)
		if err != nil {
			return parent, err
		}
		if ok && f != parent {
			return f, nil
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(r.Interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return parent, ctx.Err()
		}
	}
	return parent, nil
}

// FrameIndex maps iframe source URLs to the frames loaded from them
type FrameIndex struct {
	mu    sync.RWMutex
	byURL map[string]Frame
}

// Set records that f was loaded from url
func (x *FrameIndex) Set(url string, f Frame) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.byURL == nil {
		x.byURL = make(map[string]Frame)
	}
	for u, known := range x.byURL {
		if known == f {
			delete(x.byURL, u)
		}
	}
	x.byURL[url] = f
}

// Remove forgets f
func (x *FrameIndex) Remove(f Frame) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for u, known := range x.byURL {
		if known == f {
			delete(x.byURL, u)
		}
	}
}

// Lookup returns the frame loaded from url
func (x *FrameIndex) Lookup(url string) (Frame, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	f, ok := x.byURL[url]
	return f, ok
}

// Reset forgets every frame
func (x *FrameIndex) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byURL = nil
}
