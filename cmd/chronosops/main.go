// Command chronosops runs the self-healing coordination layer: the OODA
// state machine, investigation orchestrator, rollback manager, edit lock
// manager, build orchestrator, pattern knowledge base, and the timeline
// that records all of it, wired from a single YAML configuration file.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/internal/config"
	"github.com/broadcomms/chronosops/pkg/build"
	"github.com/broadcomms/chronosops/pkg/editlock"
	"github.com/broadcomms/chronosops/pkg/investigation"
	"github.com/broadcomms/chronosops/pkg/metrics"
	"github.com/broadcomms/chronosops/pkg/ooda"
	"github.com/broadcomms/chronosops/pkg/patterns"
	"github.com/broadcomms/chronosops/pkg/rollback"
	"github.com/broadcomms/chronosops/pkg/timeline"
)

func main() {
	configPath := flag.String("config", "/etc/chronosops/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	watcher, err := config.NewWatcher(*configPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("loading configuration")
	}
	cfg := watcher.Current()
	applyLogLevel(logger, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("wiring core components")
	}
	defer core.Close()

	watcher.Subscribe(func(c *config.Config) {
		applyLogLevel(logger, c.Logging.Level)
	})
	if err := watcher.Watch(ctx.Done()); err != nil {
		logger.WithError(err).Fatal("starting config watcher")
	}

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logger)
	metricsServer.StartAsync()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Stop(shutdownCtx)
	}()

	// Crash-recovery scan: orphaned investigations in a terminal state are
	// cleared; mid-flight ones are logged as resume candidates for the
	// operator's per-incident orchestrator glue to pick up.
	scanner := investigation.NewRecoveryScanner(core.Repos.Incidents, core.Repos.DevelopmentCycles,
		cfg.Investigation.StaleThreshold.Duration, logger)
	report, err := scanner.Scan(ctx)
	if err != nil {
		logger.WithError(err).Warn("crash-recovery scan failed")
	}
	for _, inc := range report.ResumableIncidents {
		logger.WithField("incident_id", inc.ID).WithField("state", string(inc.State)).
			Info("orphaned investigation eligible for resume")
	}
	for _, cyc := range report.InterruptedCycles {
		logger.WithField("cycle_id", cyc.ID).WithField("phase", string(cyc.Phase)).
			Info("interrupted development cycle eligible for resume")
	}

	go expireStaleLocks(ctx, core.EditLocks, logger)

	logger.WithField("webhookPort", cfg.Server.WebhookPort).Info("chronosops started")
	<-ctx.Done()
	logger.Info("chronosops shutting down")
}

// expireStaleLocks periodically transitions every active-but-past-expiry edit
// lock to expired, so a crashed holder's lock cannot block a cycle forever.
func expireStaleLocks(ctx context.Context, locks *editlock.Manager, logger *logrus.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := locks.ExpireStale(ctx)
			if err != nil {
				logger.WithError(err).Warn("expiring stale edit locks")
				continue
			}
			if n > 0 {
				logger.WithField("count", n).Info("expired stale edit locks")
			}
		}
	}
}

// core bundles every long-lived component main.go constructs directly.
// investigation.Orchestrator is deliberately absent: it requires
// deployment-specific Extractor/Executor/Verifier/ClusterSnapshotter
// collaborators (pkg/contracts) that only the operator integrating
// chronosops into a concrete cluster can provide, one ooda.StateMachine and
// investigation.Orchestrator per incident. Callers construct those per
// incident using RollbackMgr, EditLocks, Builds, Patterns, and Timeline
// below as the shared, long-lived collaborators.
type core struct {
	RollbackMgr *rollback.Manager
	EditLocks   *editlock.Manager
	Builds      *build.Orchestrator
	Patterns    *patterns.KnowledgeBase
	Learner     *patterns.Learner
	Timeline    *timeline.Builder
	Repos       timeline.Repositories
	StateFor    func() *ooda.StateMachine

	redisClient    *redis.Client
	db             *sqlx.DB
	timelineCancel context.CancelFunc
}

func (c *core) Close() {
	c.timelineCancel()
	c.Timeline.Close()
	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

func wire(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*core, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
	editLocks := editlock.New(cfg.EditLock.ToEditLockConfig(), redisClient, logger)

	rollbackMgr, err := rollback.New(ctx, cfg.Rollback.ToRollbackConfig(), nil, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing rollback manager: %w", err)
	}

	// Runner shells out to the toolchain a deployment actually builds with
	// (tekton PipelineRuns in a cluster, local exec elsewhere); like the
	// investigation collaborators, the concrete choice is the operator's.
	builds := build.New(cfg.Build.ToBuildConfig(), nil, logger)
	kb := patterns.New()

	store := timeline.NewStore()
	repos := store.Repositories()

	var db *sqlx.DB
	eventRepo := repos.TimelineEvents
	if cfg.Storage.DatabaseDSN != "" {
		sqlDB, err := sql.Open("pgx", cfg.Storage.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := timeline.Migrate(sqlDB); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		db = sqlx.NewDb(sqlDB, "pgx")
		eventRepo = timeline.NewPostgresEventRepository(db)
		repos.TimelineEvents = eventRepo
	}

	tb := timeline.NewBuilder(eventRepo, logger)
	timelineCtx, timelineCancel := context.WithCancel(ctx)
	tb.Start(timelineCtx)

	recorder := metrics.NewRecorder()
	builds.Subscribe(func(e build.Event) {
		tb.HandleBuildEvent(e.BuildID, e)
		switch e.Kind {
		case "complete":
			recorder.BuildOutcome("success")
		case "error":
			recorder.BuildOutcome("failed")
		}
	})

	// Learner's Extractor is an AI backend (contracts.NewLangchainExtractor
	// wraps one); operators supply a configured langchaingo llms.Model.
	return &core{
		RollbackMgr:    rollbackMgr,
		EditLocks:      editLocks,
		Builds:         builds,
		Patterns:       kb,
		Learner:        patterns.NewLearner(kb, nil),
		Timeline:       tb,
		Repos:          repos,
		StateFor: func() *ooda.StateMachine {
			sm := ooda.New(cfg.OODA.ToOODAConfig(), logger)
			sm.Subscribe(func(e ooda.Event) {
				if e.Kind == "state:changed" {
					recorder.PhaseTransition(string(e.From), string(e.To))
				}
			})
			return sm
		},
		redisClient:    redisClient,
		db:             db,
		timelineCancel: timelineCancel,
	}, nil
}

func applyLogLevel(logger *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warn("unrecognized log level, keeping current level")
		return
	}
	logger.SetLevel(parsed)
}
