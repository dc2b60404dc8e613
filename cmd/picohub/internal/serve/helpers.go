package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sipeed/picohub/cmd/picohub/internal"
	"github.com/sipeed/picohub/pkg/channels"
	"github.com/sipeed/picohub/pkg/commands"
	"github.com/sipeed/picohub/pkg/config"
	"github.com/sipeed/picohub/pkg/gateway"
	"github.com/sipeed/picohub/pkg/hub"
	"github.com/sipeed/picohub/pkg/logger"
	"github.com/sipeed/picohub/pkg/metrics"
	"github.com/sipeed/picohub/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// services is everything serve starts, wired but not yet running.
type services struct {
	hub      *hub.Hub
	router   *commands.Router
	gateway  *gateway.Server
	metrics  *metrics.Metrics
	storeDir string
}

// loadValidated loads the config and refuses it when a required setting is
// missing or invalid.
func loadValidated() (*config.Config, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to start: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, debug bool) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			return fmt.Errorf("enable file logging: %w", err)
		}
	}
	return nil
}

func buildServices(cfg *config.Config) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.NewRegistry())
	fs := store.NewFileStore(cfg.Store.Path)
	reg := hub.NewRegistry(fs, fs.Load(), hub.WithMetrics(m))
	gate := hub.NewGate(string(cfg.Operator.ID), cfg.Operator.Password, cfg.Operator.LoginAttemptsPerMinute)
	h := hub.New(reg, gate)

	return &services{
		hub: h,
		router: commands.NewRouter(h, commands.Options{
			Capabilities: cfg.Capabilities,
			Location:     loc,
			Metrics:      m,
		}),
		gateway:  gateway.NewServer(cfg.Gateway, h, m),
		metrics:  m,
		storeDir: fs.Path(),
	}, nil
}

func serveCmd(parent context.Context, debug bool) error {
	cfg, err := loadValidated()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg, debug); err != nil {
		return err
	}
	defer logger.DisableFileLogging()

	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}

	tg, err := channels.NewTelegramChannel(cfg.Telegram, svc.router)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.gateway.Start(); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	if err := tg.Start(ctx); err != nil {
		shutdown(svc, nil)
		return err
	}

	logger.InfoCF("serve", "picohub running", map[string]any{
		"gateway": cfg.Gateway.Addr(),
		"store":   svc.storeDir,
		"agents":  len(svc.hub.Registry.List()),
	})

	<-ctx.Done()
	logger.InfoC("serve", "Shutting down")
	shutdown(svc, tg)
	return nil
}

func shutdown(svc *services, tg *channels.TelegramChannel) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if tg != nil {
		if err := tg.Stop(ctx); err != nil {
			logger.WarnCF("serve", "Telegram stop", map[string]any{"error": err.Error()})
		}
	}
	if err := svc.gateway.Stop(ctx); err != nil {
		logger.WarnCF("serve", "Gateway stop", map[string]any{"error": err.Error()})
	}
	_ = svc.hub.Close()
}
