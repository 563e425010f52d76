// Package subscription defines push subscription descriptors and the stores
// that persist them.
package subscription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrAlreadyExists is returned by Create for a descriptor already stored.
	ErrAlreadyExists = errors.New("subscription already exists")
	// ErrNotFound is returned when no stored descriptor matches.
	ErrNotFound = errors.New("subscription not found")
	// ErrInvalid is returned for descriptors missing required fields.
	ErrInvalid = errors.New("invalid subscription")
)

// Keys holds the client's encryption keys.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a browser Web Push subscription. The whole descriptor is
// its identity: two subscriptions are the same only if every field matches.
type Subscription struct {
	Endpoint       string `json:"endpoint"`
	ExpirationTime *int64 `json:"expirationTime,omitempty"`
	Keys           Keys   `json:"keys"`
}

// Parse decodes and validates a descriptor.
func Parse(data []byte) (Subscription, error) {
	var s Subscription
	if err := json.Unmarshal(data, &s); err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return Subscription{}, err
	}
	return s, nil
}

// Validate checks that the endpoint and both keys are present.
func (s Subscription) Validate() error {
	switch {
	case strings.TrimSpace(s.Endpoint) == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalid)
	case !strings.HasPrefix(s.Endpoint, "https://") && !strings.HasPrefix(s.Endpoint, "http://"):
		return fmt.Errorf("%w: endpoint must be an http(s) URL", ErrInvalid)
	case s.Keys.P256dh == "":
		return fmt.Errorf("%w: keys.p256dh is required", ErrInvalid)
	case s.Keys.Auth == "":
		return fmt.Errorf("%w: keys.auth is required", ErrInvalid)
	}
	return nil
}

// Canonical returns the canonical JSON encoding used for equality.
func (s Subscription) Canonical() []byte {
	// Struct encoding has a fixed field order, so equal descriptors encode equally.
	b, _ := json.Marshal(s)
	return b
}

// Key returns a stable identifier derived from the canonical encoding.
func (s Subscription) Key() string {
	sum := sha256.Sum256(s.Canonical())
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two descriptors are identical.
func (s Subscription) Equal(o Subscription) bool {
	return s.Key() == o.Key()
}

// Store persists subscription descriptors.
type Store interface {
	// Create stores s. MUST return ErrAlreadyExists if an equal descriptor exists.
	Create(ctx context.Context, s Subscription) error

	// List returns every stored descriptor.
	List(ctx context.Context) ([]Subscription, error)

	// Delete removes descriptors equal to s and returns how many were removed.
	Delete(ctx context.Context, s Subscription) (int, error)

	// Close releases backend resources.
	Close() error
}
