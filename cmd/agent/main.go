package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"coincall/internal/config"
	"coincall/internal/push"
	"coincall/internal/session"
	"coincall/internal/signaling"
	"coincall/pkg/logger"
	"coincall/pkg/rabbitmq"

	"golang.org/x/sync/errgroup"
)

// The agent is a headless device: it receives incoming calls over push and polling,
// presents each at most once and reports missed calls.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAgent()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env).With("user_id", cfg.UserID, "device_id", cfg.DeviceID)
	slog.SetDefault(log)

	client := signaling.NewClient(cfg.APIBaseURL, cfg.AccessToken, cfg.HTTPTimeout)
	reg := signaling.NewRegistry(cfg.Signaling.DedupCapacity)

	dev := &device{
		api:         client,
		transport:   session.LogTransport{Log: log},
		autoAnswer:  cfg.AutoAnswer,
		hangUpAfter: cfg.HangUpAfter,
		log:         log,
		ctx:         rootCtx,
	}
	resolver := signaling.NewResolver(reg, dev, signaling.ResolverOptions{Broadcaster: dev, Logger: log})
	hub := signaling.NewHub(resolver, 32, log)
	hub.OnResolved = func(env signaling.Envelope, action signaling.Action) {
		log.Debug("envelope resolved", "call_id", env.CallID, "type", string(env.Type), "channel", string(env.Source), "action", action.String())
	}
	fg := signaling.NewForegroundService(hub, resolver, client, cfg.Signaling.RingTimeout, log)
	wake := waker{hub: hub, fg: fg, grants: signaling.Grants{FullScreen: cfg.FullScreenGranted, Notifications: true}}
	// Polled calls ring through the foreground service too, so the ring timeout applies
	// when push never arrives.
	poller := signaling.NewPoller(client, wake, reg, cfg.Signaling.PollInterval, log)
	dev.resolver, dev.fg, dev.poller = resolver, fg, poller

	pushAdapter := signaling.NewPushAdapter(wake, cfg.Signaling.FreshnessWindow, log)

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })

	if cfg.AMQP.URL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.AMQP.URL, log)
		if err != nil {
			log.Error("rabbitmq init failed", "err", err)
			os.Exit(1)
		}
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Consume(ctx, cfg.AMQP.Exchange, "", map[string]rabbitmq.Handler{
				push.RoutingKey(cfg.UserID): push.Deliveries(pushAdapter),
			})
		})
	} else {
		log.Warn("AMQP_URL not set; relying on polling only")
	}

	log.Info("agent running", "api", cfg.APIBaseURL, "auto_answer", cfg.AutoAnswer)
	if err := g.Wait(); err != nil {
		log.Error("agent stopped", "err", err)
	}
	fg.Wait()
	dev.wg.Wait()
	log.Info("agent shut down")
}
