// Package notify fans a doorbell ring out to every stored push subscription.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sweeney/doorbell/internal/logic"
	"github.com/sweeney/doorbell/internal/push"
	"github.com/sweeney/doorbell/internal/subscription"
)

// CooldownMode selects how the dispatch cooldown behaves.
type CooldownMode string

const (
	// ModeExtend restarts the cooldown on every trigger, including suppressed
	// ones. A trigger stream faster than the cooldown never notifies again
	// until it pauses for a full cooldown.
	ModeExtend CooldownMode = "extend"
	// ModeFixed allows one dispatch per cooldown regardless of how many
	// triggers are suppressed in between.
	ModeFixed CooldownMode = "fixed"
)

// ParseCooldownMode accepts "extend" and "fixed".
func ParseCooldownMode(s string) (CooldownMode, error) {
	switch CooldownMode(s) {
	case ModeExtend, "":
		return ModeExtend, nil
	case ModeFixed:
		return ModeFixed, nil
	}
	return "", fmt.Errorf("notify: invalid cooldown mode %q", s)
}

// Defaults.
const (
	DefaultCooldown = 15 * time.Second
	DefaultTTL      = 20 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Message is the notification shown by the service worker.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DefaultMessage is the ring notification.
var DefaultMessage = Message{Title: "Ding Dong!", Body: "Someone is at the door!"}

// Config tunes the dispatcher.
type Config struct {
	Cooldown time.Duration
	Mode     CooldownMode
	// TTL is how long the push service keeps an undelivered message.
	TTL time.Duration
	// Timeout bounds each individual delivery.
	Timeout time.Duration
	// Concurrency limits parallel deliveries; 0 means unlimited.
	Concurrency int
	Message     Message
	// OnSummary, if set, is called after every completed fan-out.
	OnSummary func(Summary)
	// OnSuppressed, if set, is called with the running total every time the
	// cooldown holds a trigger back.
	OnSuppressed func(total int)
}

// Summary counts the outcomes of one fan-out.
type Summary struct {
	Delivered int
	Gone      int
	Failed    int
}

// Total returns the number of attempted deliveries.
func (s Summary) Total() int {
	return s.Delivered + s.Gone + s.Failed
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.Delivered += o.Delivered
	s.Gone += o.Gone
	s.Failed += o.Failed
}

// Dispatcher rate-limits rings and delivers them to every subscriber.
type Dispatcher struct {
	store   subscription.Store
	sender  push.Sender
	cfg     Config
	payload []byte
	now     func() time.Time

	mu         sync.Mutex
	last       time.Time
	triggered  bool
	limiter    *rate.Limiter
	totals     Summary
	suppressed int

	wg sync.WaitGroup
}

// New creates a dispatcher. Zero durations fall back to the defaults.
func New(store subscription.Store, sender push.Sender, cfg Config) *Dispatcher {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeExtend
	}
	if cfg.Message == (Message{}) {
		cfg.Message = DefaultMessage
	}
	payload, _ := json.Marshal(cfg.Message)

	return &Dispatcher{
		store:   store,
		sender:  sender,
		cfg:     cfg,
		payload: payload,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
	}
}

// allow applies the cooldown. The check and update happen under one lock so
// two close triggers can never both dispatch.
func (d *Dispatcher) allow() bool {
	d.mu.Lock()
	now := d.now()
	var ok bool
	switch d.cfg.Mode {
	case ModeFixed:
		ok = d.limiter.AllowN(now, 1)
	default:
		ok = !d.triggered || now.Sub(d.last) >= d.cfg.Cooldown
		d.last = now
		d.triggered = true
	}
	if !ok {
		d.suppressed++
	}
	total := d.suppressed
	d.mu.Unlock()

	if !ok && d.cfg.OnSuppressed != nil {
		d.cfg.OnSuppressed(total)
	}
	return ok
}

// NotifySubscribers applies the cooldown and, when allowed, fans out and
// waits for every delivery. It reports whether a fan-out happened.
func (d *Dispatcher) NotifySubscribers(ctx context.Context) (Summary, bool) {
	if !d.allow() {
		log.Debug("notification suppressed by cooldown")
		return Summary{}, false
	}
	sum, err := d.Dispatch(ctx)
	if err != nil {
		log.WithError(err).Error("notification fan-out failed")
	}
	return sum, true
}

// Trigger applies the cooldown synchronously and runs the fan-out in the
// background. Deliveries are detached from ctx cancellation so a shutdown
// waits for them (see Wait) instead of aborting them.
func (d *Dispatcher) Trigger(ctx context.Context) bool {
	if !d.allow() {
		log.Debug("notification suppressed by cooldown")
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.Dispatch(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Error("notification fan-out failed")
		}
	}()
	return true
}

// Wait blocks until every background fan-out started by Trigger has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch delivers the message to every stored subscription concurrently,
// ignoring the cooldown. Gone subscriptions are deleted; other failures are
// logged only. The only error returned is a failure to list subscriptions.
func (d *Dispatcher) Dispatch(ctx context.Context) (Summary, error) {
	subs, err := d.store.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list subscriptions: %w", err)
	}

	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"run": runID, "subscribers": len(subs)})
	logger.Info("notifying subscribers")

	var (
		mu  sync.Mutex
		sum Summary
		g   errgroup.Group
	)
	if d.cfg.Concurrency > 0 {
		g.SetLimit(d.cfg.Concurrency)
	}
	for _, sub := range subs {
		g.Go(func() error {
			outcome := d.deliver(ctx, logger, sub)
			mu.Lock()
			switch outcome {
			case push.Delivered:
				sum.Delivered++
			case push.PermanentlyGone:
				sum.Gone++
			default:
				sum.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	logger.WithFields(log.Fields{
		"delivered": sum.Delivered,
		"gone":      sum.Gone,
		"failed":    sum.Failed,
	}).Info("notification fan-out complete")

	d.mu.Lock()
	d.totals.Add(sum)
	d.mu.Unlock()
	if d.cfg.OnSummary != nil {
		d.cfg.OnSummary(sum)
	}
	return sum, nil
}

func (d *Dispatcher) deliver(ctx context.Context, logger *log.Entry, sub subscription.Subscription) (outcome push.Outcome) {
	entry := logger.WithField("endpoint", sub.Endpoint)
	defer func() {
		if p := recover(); p != nil {
			entry.WithField("panic", p).Error("push delivery panicked")
			outcome = push.TransientFailure
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	res := d.sender.Send(sendCtx, sub, d.payload, d.cfg.TTL)

	switch res.Outcome {
	case push.Delivered:
		entry.Debug("push delivered")
	case push.PermanentlyGone:
		n, err := d.store.Delete(ctx, sub)
		if err != nil {
			entry.WithError(err).Warn("failed to prune gone subscription")
		} else {
			entry.WithField("removed", n).Info("pruned gone subscription")
		}
	default:
		entry.WithError(res.Err).WithField("status", res.StatusCode).Warn("push delivery failed")
	}
	return res.Outcome
}

// Totals returns the accumulated outcomes and the number of suppressed triggers.
func (d *Dispatcher) Totals() (Summary, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals, d.suppressed
}

// Task returns a registry task that triggers a fan-out on every transition
// matching dir.
func (d *Dispatcher) Task(ctx context.Context, dir logic.Direction) logic.Task {
	return logic.Task{
		Name:      "notify",
		Direction: dir,
		Run: func(t logic.Transition) error {
			d.Trigger(ctx)
			return nil
		},
	}
}
