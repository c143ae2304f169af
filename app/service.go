// Package app assembles the dispatch engine from its configuration.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/voluntr/engine/config"
	"github.com/voluntr/engine/core/directory"
	"github.com/voluntr/engine/core/dispatch"
	"github.com/voluntr/engine/core/events"
	"github.com/voluntr/engine/core/incentive"
	"github.com/voluntr/engine/core/match"
	coremetrics "github.com/voluntr/engine/core/metrics"
	corenotify "github.com/voluntr/engine/core/notify"
	"github.com/voluntr/engine/core/participation"
	"github.com/voluntr/engine/core/session"
	"github.com/voluntr/engine/core/store"
	"github.com/voluntr/engine/core/sweeper"
	"github.com/voluntr/engine/infra/logger"
	"github.com/voluntr/engine/infra/metrics"
	"github.com/voluntr/engine/infra/notify"
	infraparticipation "github.com/voluntr/engine/infra/participation"
	"github.com/voluntr/engine/infra/storage"
	"github.com/voluntr/engine/internal/eventbus"
)

// Service orchestrates the directory, dispatcher, session manager and
// sweeper.
type Service struct {
	Directory  *directory.Directory
	Dispatcher *dispatch.Dispatcher
	Sessions   *session.Manager
	Sweeper    *sweeper.Sweeper
	Bus        *eventbus.Bus[events.Event]

	store    store.Store
	oracle   participation.Oracle
	hook     corenotify.Hook
	cron     *cron.Cron
	log      logger.Logger
	promAddr string
}

// New creates a Service from the configuration. Nothing starts running
// until Run is called.
func New(cfg *config.Config) (*Service, error) {
	if cfg.Logging.Env != "" {
		os.Setenv("APP_ENV", cfg.Logging.Env)
	}
	os.Setenv("LOG_LEVEL", cfg.Logging.Level)
	logg := logger.New("service")

	st, err := newStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	oracle, err := newOracle(cfg.Participation)
	if err != nil {
		return nil, fmt.Errorf("participation oracle: %w", err)
	}
	hook, err := newHook(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("notify hook: %w", err)
	}
	sink, err := newSink(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	bus := eventbus.New[events.Event]()
	dir := directory.New(st, cfg.Routing.DirectoryTTL(), sink, logger.New("directory"))
	calc := incentive.New(cfg.Session.IncentiveConfig(), oracle, logger.New("incentive"))
	mgr := session.NewManager(cfg.Session.ManagerConfig(), st, dir, calc, bus, sink, logger.New("session"))
	scorer := match.NewScorer(cfg.Routing.MatchConfig())
	disp := dispatch.NewDispatcher(dir, scorer, mgr, hook, bus, sink, logger.New("dispatch"))
	swp := sweeper.New(cfg.Routing.SweeperConfig(), mgr, disp, dir, sink, logger.New("sweeper"))

	svc := &Service{
		Directory:  dir,
		Dispatcher: disp,
		Sessions:   mgr,
		Sweeper:    swp,
		Bus:        bus,
		store:      st,
		oracle:     oracle,
		hook:       hook,
		cron:       cron.New(),
		log:        logg,
	}
	if cfg.Metrics.PrometheusEnabled {
		svc.promAddr = fmt.Sprintf(":%d", cfg.Metrics.PrometheusPort)
	}
	spec := fmt.Sprintf("@every %ds", cfg.Routing.DirectoryTTLSeconds)
	if _, err := svc.cron.AddFunc(spec, svc.refreshDirectory); err != nil {
		return nil, fmt.Errorf("schedule directory refresh: %w", err)
	}
	return svc, nil
}

// Run loads state, starts the background loops and blocks until the context
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Directory.ForceRefresh(ctx); err != nil {
		return fmt.Errorf("initial directory refresh: %w", err)
	}
	volunteers, err := s.store.LoadVolunteers(ctx)
	if err != nil {
		return fmt.Errorf("load volunteers: %w", err)
	}
	if err := s.Sessions.Restore(ctx, volunteers); err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	s.cron.Start()
	go s.Sweeper.Run(ctx)
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.log.Infof("engine running")
	<-ctx.Done()
	return nil
}

// Close releases all held resources.
func (s *Service) Close() error {
	<-s.cron.Stop().Done()
	s.Sessions.Close()
	s.Bus.Close()
	if h, ok := s.hook.(*notify.MQTTHook); ok {
		h.Close()
	}
	if o, ok := s.oracle.(*infraparticipation.RedisOracle); ok {
		if err := o.Close(); err != nil {
			s.log.Errorf("redis close: %v", err)
		}
	}
	if g, ok := s.store.(*storage.GormStore); ok {
		return g.Close()
	}
	return nil
}

func (s *Service) refreshDirectory() {
	if err := s.Directory.Refresh(context.Background()); err != nil {
		s.log.Errorf("directory refresh: %v", err)
	}
}

func newStore(cfg config.StorageConfig) (store.Store, error) {
	if cfg.DSN == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewGormStore(cfg.DSN)
}

func newOracle(cfg infraparticipation.Config) (participation.Oracle, error) {
	if cfg.Addr == "" {
		return infraparticipation.NewMemoryOracle(), nil
	}
	return infraparticipation.NewRedisOracle(context.Background(), cfg)
}

func newHook(cfg notify.Config) (corenotify.Hook, error) {
	if cfg.Broker == "" {
		return notify.LogHook{Log: logger.New("notify")}, nil
	}
	return notify.NewMQTTHook(cfg, logger.New("notify"))
}

func newSink(cfg config.MetricsConfig) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return metrics.NewMultiSink(sinks...), nil
	}
}
