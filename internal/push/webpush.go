package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/sweeney/doorbell/internal/subscription"
)

// Credentials are the VAPID application server keys.
type Credentials struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact for the push service.
	Subject string
}

// WebPushSender sends encrypted Web Push messages signed with VAPID.
type WebPushSender struct {
	creds  Credentials
	client *http.Client
}

// NewWebPushSender creates a sender. A nil client uses http.DefaultClient.
func NewWebPushSender(creds Credentials, client *http.Client) *WebPushSender {
	if client == nil {
		client = http.DefaultClient
	}
	creds.Subject = subscriberContact(creds.Subject)
	return &WebPushSender{creds: creds, client: client}
}

// subscriberContact strips a leading mailto: because webpush-go adds its own
// to every subject that is not an https: URL.
func subscriberContact(subject string) string {
	subject = strings.TrimSpace(subject)
	if len(subject) >= len("mailto:") && strings.EqualFold(subject[:len("mailto:")], "mailto:") {
		return subject[len("mailto:"):]
	}
	return subject
}

// Send delivers payload to sub.
func (s *WebPushSender) Send(ctx context.Context, sub subscription.Subscription, payload []byte, ttl time.Duration) Result {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.creds.Subject,
		VAPIDPublicKey:  s.creds.PublicKey,
		VAPIDPrivateKey: s.creds.PrivateKey,
		TTL:             int(ttl.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return Result{Outcome: TransientFailure, Err: fmt.Errorf("send push: %w", err)}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	outcome := Classify(resp.StatusCode)
	res := Result{Outcome: outcome, StatusCode: resp.StatusCode}
	if outcome != Delivered {
		res.Err = fmt.Errorf("push service returned %d: %s", resp.StatusCode, body)
	}
	return res
}

// GenerateCredentials creates a new VAPID key pair for subject.
func GenerateCredentials(subject string) (Credentials, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return Credentials{}, fmt.Errorf("generate vapid keys: %w", err)
	}
	return Credentials{PublicKey: pub, PrivateKey: priv, Subject: subject}, nil
}
