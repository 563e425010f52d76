package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/announce"
	"github.com/sweeney/doorbell/internal/bridge"
	"github.com/sweeney/doorbell/internal/button"
	"github.com/sweeney/doorbell/internal/config"
	"github.com/sweeney/doorbell/internal/discovery"
	"github.com/sweeney/doorbell/internal/gpio"
	"github.com/sweeney/doorbell/internal/logic"
	"github.com/sweeney/doorbell/internal/mqtt"
	"github.com/sweeney/doorbell/internal/notify"
	"github.com/sweeney/doorbell/internal/push"
	"github.com/sweeney/doorbell/internal/status"
	"github.com/sweeney/doorbell/internal/subscription"
	"github.com/sweeney/doorbell/internal/web"
)

const shutdownTimeout = 10 * time.Second

func openInput(cfg *config.Config) (gpio.Input, error) {
	if cfg.Mock {
		return gpio.NewFakeInput(cfg.ButtonActive.Invert()), nil
	}
	in, err := gpio.NewRealInput(cfg.GPIOChip, cfg.ButtonPin, cfg.ButtonPull)
	if err != nil {
		return nil, fmt.Errorf("init button: %w", err)
	}
	return in, nil
}

func openOutput(cfg *config.Config) (gpio.Output, error) {
	idle := cfg.Polarity().RelayLevel(false)
	if cfg.Mock {
		out := gpio.NewFakeOutput()
		return out, out.Write(idle)
	}
	out, err := gpio.NewRealOutput(cfg.GPIOChip, cfg.RelayPin, idle)
	if err != nil {
		return nil, fmt.Errorf("init relay: %w", err)
	}
	return out, nil
}

// levelFor returns the raw input level for a logical button state.
func levelFor(p logic.Polarity, pressed bool) gpio.Level {
	if pressed {
		return p.ButtonActive
	}
	return p.ButtonActive.Invert()
}

func run(ctx context.Context, cfg *config.Config) error {
	input, err := openInput(cfg)
	if err != nil {
		return err
	}
	defer input.Close()

	relay, err := openOutput(cfg)
	if err != nil {
		return err
	}
	defer relay.Close()

	store, err := subscription.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open subscription store: %w", err)
	}
	defer store.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:         cfg.PollInterval.Milliseconds(),
		SettleMs:       cfg.SettleInterval.Milliseconds(),
		BurstThreshold: cfg.BurstThreshold,
		BurstWindowMs:  cfg.BurstWindow.Milliseconds(),
		CooldownMs:     cfg.NotifyCooldown.Milliseconds(),
		CooldownMode:   string(cfg.NotifyCooldownMode),
		Store:          cfg.Store.Backend,
		Broker:         cfg.MQTTBroker,
		HTTPAddr:       cfg.HTTPAddr,
		Mock:           cfg.Mock,
	})
	refreshSubscribers := func(ctx context.Context) {
		subs, err := store.List(ctx)
		if err != nil {
			log.WithError(err).Warn("failed to count subscriptions")
			return
		}
		tracker.SetSubscribers(len(subs))
	}
	refreshSubscribers(ctx)

	polarity := cfg.Polarity()
	press := logic.PressDirection(polarity.ButtonActive)
	tasks := logic.NewRegistry()
	engine := logic.NewEngine(logic.Config{
		Polarity:       polarity,
		BurstThreshold: cfg.BurstThreshold,
		BurstWindow:    cfg.BurstWindow,
	}, relay, tasks)
	tasks.Add(tracker.Task(press))

	if cfg.PushEnabled {
		dispatcher := notify.New(store, push.NewWebPushSender(cfg.VAPID, &http.Client{Timeout: cfg.NotifyTimeout}), notify.Config{
			Cooldown:    cfg.NotifyCooldown,
			Mode:        cfg.NotifyCooldownMode,
			TTL:         cfg.NotifyTTL,
			Timeout:     cfg.NotifyTimeout,
			Concurrency: cfg.NotifyConcurrency,
			OnSummary: func(s notify.Summary) {
				tracker.AddNotifications(s.Delivered, s.Gone, s.Failed)
				if s.Gone > 0 {
					refreshSubscribers(context.Background())
				}
			},
			OnSuppressed: tracker.SetSuppressedNotifications,
		})
		defer dispatcher.Wait()
		tasks.Add(dispatcher.Task(ctx, press))
	}

	var conn mqtt.ConnectionStatus
	if cfg.BridgeEnabled() {
		client, err := mqtt.Connect(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: mqtt.ClientID(cfg.MQTTDeviceID),
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", bridge.ErrConnection, err)
		}
		br := bridge.New(client, engine, polarity, bridge.Config{
			TopicPrefix: cfg.MQTTTopicPrefix,
			DeviceID:    cfg.MQTTDeviceID,
			PressHold:   cfg.MQTTPressHold,
		})
		if err := br.Start(); err != nil {
			client.Close()
			return err
		}
		defer br.Close()
		tasks.Add(br.Task())
		conn = br
	}

	if cfg.SNSTopicARN != "" {
		cli, err := announce.NewClient(ctx, cfg.SNSEndpoint)
		if err != nil {
			return fmt.Errorf("init sns: %w", err)
		}
		announcer := announce.NewAnnouncer(cli, cfg.SNSTopicARN, cfg.MQTTDeviceID)
		defer announcer.Wait()
		tasks.Add(announcer.Task(ctx, press))
	}

	deps := web.Deps{Store: store, Tracker: tracker}
	if cfg.PushEnabled {
		deps.VAPIDPublicKey = cfg.VAPID.PublicKey
	}
	if cfg.Mock {
		deps.Mock = func(pressed bool) error {
			_, _, err := engine.OnSample(levelFor(polarity, pressed), time.Now(), logic.SourceMock)
			return err
		}
	}
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	srv := web.New(web.Options{
		Addr:              cfg.HTTPAddr,
		CORSAllowOrigins:  cfg.CORSAllowOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, deps)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server error")
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("http server listening")

	if cfg.MDNSEnabled {
		port, err := discovery.PortFromAddr(ln.Addr().String())
		if err != nil {
			return err
		}
		adv := discovery.NewAdvertiser(discovery.Config{
			Instance: cfg.MDNSInstance,
			Port:     port,
			TXT:      map[string]string{"path": "/", "api": "/api"},
		})
		if err := adv.Start(); err != nil {
			log.WithError(err).Warn("mdns advertisement failed")
		} else {
			defer adv.Stop()
		}
	}

	log.WithFields(log.Fields{
		"poll":      cfg.PollInterval,
		"settle":    cfg.SettleInterval,
		"mock":      cfg.Mock,
		"push":      cfg.PushEnabled,
		"store":     cfg.Store.Backend,
		"broker":    cfg.MQTTBroker,
		"tasks":     tasks.Len(),
		"direction": press,
	}).Info("started")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	poller := button.NewPoller(input, engine, cfg.SettleInterval)
	return runLoop(ctx, poller, engine, tracker, conn, ticker.C, sigCh)
}

// runLoop polls the button on every tick and refreshes the status tracker
// until a signal arrives or ctx is cancelled. A run of read failures is
// logged once, when it starts.
func runLoop(ctx context.Context, poller *button.Poller, engine *logic.Engine, tracker *status.Tracker, conn mqtt.ConnectionStatus, tick <-chan time.Time, sig <-chan os.Signal) error {
	polarity := engine.Polarity()
	failing := false

	for {
		select {
		case s := <-sig:
			log.WithField("signal", s.String()).Info("shutting down")
			return nil

		case <-ctx.Done():
			return nil

		case <-tick:
			err := poller.PollOnce(ctx)
			switch {
			case err == nil:
				if failing {
					log.Info("button reads recovered")
					failing = false
				}
			case errors.Is(err, gpio.ErrHardwareRead):
				if !failing {
					log.WithError(err).Error("button read failed")
					failing = true
				}
			case ctx.Err() != nil:
				return nil
			default:
				log.WithError(err).Warn("button sample failed")
			}

			state := engine.State()
			tracker.SetEngine(state, state.Known && polarity.Pressed(state.Level))
			if conn != nil {
				tracker.SetMQTTConnected(conn.IsConnected())
			}
		}
	}
}
