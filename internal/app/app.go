package app

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bassista/go_devwatch/internal/config"
	"github.com/bassista/go_devwatch/internal/coordinator"
	"github.com/bassista/go_devwatch/internal/device"
	"github.com/bassista/go_devwatch/internal/logger"
	"github.com/bassista/go_devwatch/internal/report"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config   *config.Config
	Devices  *device.Registry
	Reporter *report.Reporter

	BaseCtx context.Context
	Cancel  context.CancelFunc

	mu          sync.Mutex
	done        []<-chan struct{}
	unsubscribe []func()
}

func New(cfg *config.Config, devices *device.Registry, rep *report.Reporter) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if devices == nil {
		return nil, errors.New("device registry is nil")
	}
	if rep == nil {
		return nil, errors.New("reporter is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:   cfg,
		Devices:  devices,
		Reporter: rep,
		BaseCtx:  ctx,
		Cancel:   cancel,
	}, nil
}

// Shutdown cancels the base context and waits for every coordinator loop to stop.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()

	a.mu.Lock()
	done := a.done
	unsubscribe := a.unsubscribe
	a.done = nil
	a.unsubscribe = nil
	a.mu.Unlock()

	for _, ch := range done {
		<-ch
	}
	for _, fn := range unsubscribe {
		fn()
	}
	a.Reporter.Flush()
}

// ValidateDevices probes every device once, in parallel. Failures are only
// logged: an unreachable device still starts and reports itself unavailable.
// Returns the number of devices that failed.
func (a *App) ValidateDevices(ctx context.Context) int {
	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range a.Devices.All() {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, a.Config.Polling.RequestTimeout)
			defer cancel()
			if err := d.Validate(vctx); err != nil {
				logger.WithDevice("app", d.Name).Warnf("cannot connect to device, it will be polled anyway: %v", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			logger.WithDevice("app", d.Name).Infof("connected to %s at %s", d.Kind, d.Client.BaseURL())
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// StartWatchers starts the coordinator of every device and the config file watcher.
func (a *App) StartWatchers(confPath string) {
	log := logger.WithComponent("app")

	a.mu.Lock()
	for _, d := range a.Devices.All() {
		a.unsubscribe = append(a.unsubscribe, d.Coordinator.Subscribe(a.failureReporter(d.Name)))
		a.done = append(a.done, d.Coordinator.Start(a.BaseCtx))
	}
	a.mu.Unlock()
	log.Infof("polling %d devices every %v", a.Devices.Len(), a.Config.Polling.Interval)

	if confPath == "" {
		return
	}
	err := config.Watch(a.BaseCtx, confPath, func(cfg *config.Config) {
		if err := logger.ApplyLevel(cfg.Misc.LogLevel); err != nil {
			log.Warnf("invalid log level '%s' in reloaded config: %v", cfg.Misc.LogLevel, err)
			return
		}
		log.Infof("log level set to: %s", logger.Logger.GetLevel())
	})
	if err != nil {
		log.Warnf("cannot watch config directory %s: %v", confPath, err)
	}
}

// failureReporter forwards the first failure of a streak to the reporter.
// Listeners of one coordinator are never called concurrently.
func (a *App) failureReporter(name string) coordinator.Listener {
	failing := false
	return func(u coordinator.Update) {
		if u.Outcome != coordinator.StateFailed {
			failing = false
			return
		}
		if !failing {
			a.Reporter.RefreshFailed(name, u.Err)
		}
		failing = true
	}
}
