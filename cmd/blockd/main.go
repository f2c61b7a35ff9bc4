package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/distraction-block/internal/blocker/common/clock"
	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/config"
	"github.com/haukened/distraction-block/internal/blocker/gateways/api"
	"github.com/haukened/distraction-block/internal/blocker/gateways/proxy"
	"github.com/haukened/distraction-block/internal/blocker/gateways/sinkhole"
	"github.com/haukened/distraction-block/internal/blocker/repos/settings"
	boltstore "github.com/haukened/distraction-block/internal/blocker/repos/settings/bolt"
	redisstore "github.com/haukened/distraction-block/internal/blocker/repos/settings/redis"
	"github.com/haukened/distraction-block/internal/blocker/services/interceptor"
	"github.com/haukened/distraction-block/internal/blocker/services/rules"
	"github.com/haukened/distraction-block/internal/blocker/services/state"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "blockd"

	// Default timeouts
	defaultUpstreamTimeout = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultConnectTimeout  = 5 * time.Second
)

// Application holds all the components of the blocker daemon
type Application struct {
	config      *config.AppConfig
	store       settings.Store
	state       *state.State
	interceptor *interceptor.Interceptor
	api         *api.Server
	proxy       *proxy.Proxy
	sinkhole    *sinkhole.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"api_addr":      cfg.APIAddr,
		"store_backend": cfg.StoreBackend,
		"proxy_enabled": cfg.ProxyEnabled,
		"dns_enabled":   cfg.DNSEnabled,
	}, "Starting "+appName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	repos, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	svc := buildServices(cfg, repos, logger)

	gw, err := buildGateways(cfg, svc, logger)
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to build gateways: %w", err)
	}

	return &Application{
		config:      cfg,
		store:       repos.store,
		state:       svc.state,
		interceptor: svc.interceptor,
		api:         gw.api,
		proxy:       gw.proxy,
		sinkhole:    gw.sinkhole,
	}, nil
}

// repositories holds all repository implementations
type repositories struct {
	store settings.Store
}

// services holds the service layer
type services struct {
	state       *state.State
	interceptor *interceptor.Interceptor
}

// gateways holds all listeners; proxy and sinkhole are nil when disabled
type gateways struct {
	api      *api.Server
	proxy    *proxy.Proxy
	sinkhole *sinkhole.Server
}

// buildRepositories opens the configured settings store
func buildRepositories(ctx context.Context, cfg *config.AppConfig, logger log.Logger) (*repositories, error) {
	clk := clock.RealClock{}

	var (
		store settings.Store
		err   error
	)
	switch cfg.StoreBackend {
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		store, err = boltstore.New(cfg.StorePath, boltstore.Options{Clock: clk})
		if err != nil {
			return nil, fmt.Errorf("open bolt store %s: %w", cfg.StorePath, err)
		}
		logger.Info(map[string]any{"path": cfg.StorePath}, "Bolt settings store opened")
	case "redis":
		cctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
		store, err = redisstore.New(cctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			Clock:    clk,
		})
		if err != nil {
			return nil, err
		}
		logger.Info(map[string]any{
			"addr": cfg.RedisAddr,
			"key":  redisstore.Key(cfg.RedisPrefix),
		}, "Redis settings store connected")
	case "memory":
		store = settings.NewMemory(nil)
		logger.Warn(nil, "Using in-memory settings store, changes are lost on exit")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return &repositories{store: store}, nil
}

// buildServices creates the cached state and the interception point
func buildServices(cfg *config.AppConfig, repos *repositories, logger log.Logger) *services {
	self := cfg.SelfPrefix()

	st := state.New(state.Options{
		Store:  repos.store,
		Logger: log.Component(logger, "state"),
		Rules: rules.Options{
			CacheSize:  int(cfg.CacheSize),
			FPRate:     cfg.BloomFPRate,
			SelfPrefix: self,
		},
	})

	ic := interceptor.New(interceptor.Options{
		State:          st,
		BlockedPageURL: self + strings.TrimPrefix(api.BlockedPagePath, "/"),
		Logger:         log.Component(logger, "interceptor"),
	})

	return &services{state: st, interceptor: ic}
}

// buildGateways creates the API and any enabled interception front ends
func buildGateways(cfg *config.AppConfig, svc *services, logger log.Logger) (*gateways, error) {
	gw := &gateways{
		api: api.New(api.Options{
			Addr:      cfg.APIAddr,
			Settings:  svc.state,
			Navigator: svc.interceptor,
			Logger:    log.Component(logger, "api"),
		}),
	}

	if cfg.ProxyEnabled {
		gw.proxy = proxy.New(proxy.Options{
			Addr:    cfg.ProxyAddr,
			Decider: svc.interceptor,
			Logger:  log.Component(logger, "proxy"),
		})
	}

	if cfg.DNSEnabled {
		fwd, err := sinkhole.NewForwarder(sinkhole.ForwarderOptions{
			Servers:  cfg.DNSUpstream,
			Timeout:  defaultUpstreamTimeout,
			Parallel: cfg.DNSParallel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream forwarder: %w", err)
		}
		sh, err := sinkhole.New(sinkhole.Options{
			Addr:     cfg.DNSAddr,
			Decider:  svc.interceptor,
			Upstream: fwd,
			Sinkhole: cfg.SinkholeIPs(),
			TTL:      time.Duration(cfg.DNSTTL) * time.Second,
			Logger:   log.Component(logger, "sinkhole"),
		})
		if err != nil {
			return nil, err
		}
		gw.sinkhole = sh
		logger.Info(map[string]any{
			"servers":  cfg.DNSUpstream,
			"timeout":  defaultUpstreamTimeout,
			"parallel": cfg.DNSParallel,
		}, "Upstream DNS forwarder configured")
	}

	return gw, nil
}

// Run starts every listener and blocks until ctx is cancelled or one of
// them fails, then shuts everything down.
func (app *Application) Run(ctx context.Context) error {
	app.state.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.api.Start(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	if app.proxy != nil {
		g.Go(func() error {
			if err := app.proxy.Start(); err != nil {
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		})
	}
	// miekg/dns cannot stop a listener that has not finished binding, so
	// shutdown waits until the sinkhole is up or has failed.
	sinkholeSettled := make(chan struct{})
	if app.sinkhole != nil {
		var once sync.Once
		settle := func() { once.Do(func() { close(sinkholeSettled) }) }
		app.sinkhole.NotifyStarted(settle)
		g.Go(func() error {
			defer settle()
			if err := app.sinkhole.Start(); err != nil {
				return fmt.Errorf("sinkhole: %w", err)
			}
			return nil
		})
	} else {
		close(sinkholeSettled)
	}

	g.Go(func() error {
		<-gctx.Done()
		<-sinkholeSettled
		log.Info(nil, "Shutdown initiated")
		return app.shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info(nil, "Graceful shutdown completed")
	return nil
}

func (app *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.api.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if app.proxy != nil {
		if err := app.proxy.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("proxy shutdown: %w", err))
		}
	}
	if app.sinkhole != nil {
		if err := app.sinkhole.Shutdown(ctx); err != nil && !isNotStarted(err) {
			errs = append(errs, fmt.Errorf("sinkhole shutdown: %w", err))
		}
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if ctx.Err() != nil {
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
	}
	return errors.Join(errs...)
}

// miekg/dns reports shutting down a server whose listener already failed.
func isNotStarted(err error) bool {
	return strings.Contains(err.Error(), "server not started")
}
