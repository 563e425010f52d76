// Package push delivers notifications to browser push subscriptions.
package push

import (
	"context"
	"net/http"
	"time"

	"github.com/sweeney/doorbell/internal/subscription"
)

// Outcome classifies a delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	// PermanentlyGone means the endpoint will never accept deliveries again.
	PermanentlyGone
	// TransientFailure covers every other failure; it is reported only.
	TransientFailure
)

// String returns a short name for the outcome.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case PermanentlyGone:
		return "gone"
	default:
		return "transient_failure"
	}
}

// Result is the outcome of one delivery.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Err        error
}

// Sender attempts delivery of a payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub subscription.Subscription, payload []byte, ttl time.Duration) Result
}

// Classify maps a push service HTTP status to an outcome.
// 404 and 410 mean the subscription has expired or been unsubscribed.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Delivered
	case status == http.StatusNotFound, status == http.StatusGone:
		return PermanentlyGone
	default:
		return TransientFailure
	}
}
