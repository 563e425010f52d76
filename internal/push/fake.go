package push

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/doorbell/internal/subscription"
)

// FakeSender records deliveries and returns scripted results per endpoint.
type FakeSender struct {
	mu sync.Mutex

	// Results maps endpoint to the result returned for it. Missing endpoints
	// are Delivered.
	Results map[string]Result

	// Panics lists endpoints for which Send panics.
	Panics map[string]bool

	// Delay, if set, is waited (or ctx cancelled) before returning.
	Delay time.Duration

	sent []Sent
}

// Sent is one recorded delivery.
type Sent struct {
	Endpoint string
	Payload  []byte
	TTL      time.Duration
}

// NewFakeSender creates a FakeSender that delivers everything.
func NewFakeSender() *FakeSender {
	return &FakeSender{Results: make(map[string]Result), Panics: make(map[string]bool)}
}

// Send records the delivery and returns the scripted result.
func (f *FakeSender) Send(ctx context.Context, sub subscription.Subscription, payload []byte, ttl time.Duration) Result {
	f.mu.Lock()
	f.sent = append(f.sent, Sent{Endpoint: sub.Endpoint, Payload: payload, TTL: ttl})
	res, ok := f.Results[sub.Endpoint]
	panics := f.Panics[sub.Endpoint]
	delay := f.Delay
	f.mu.Unlock()

	if panics {
		panic("fake sender: " + sub.Endpoint)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{Outcome: TransientFailure, Err: ctx.Err()}
		}
	}
	if !ok {
		return Result{Outcome: Delivered, StatusCode: 201}
	}
	return res
}

// Sent returns a copy of recorded deliveries.
func (f *FakeSender) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}
