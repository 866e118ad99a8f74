package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janus-network/janus/internal/api"
	"github.com/janus-network/janus/internal/app/consensus"
	"github.com/janus-network/janus/internal/app/ledger"
	"github.com/janus-network/janus/internal/app/params"
	"github.com/janus-network/janus/internal/app/poll"
	"github.com/janus-network/janus/internal/app/reputation"
	"github.com/janus-network/janus/internal/app/rollback"
	"github.com/janus-network/janus/internal/app/stake"
	"github.com/janus-network/janus/internal/infra/metrics"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// Daemon is the core Janus runtime. It wires together all services.
type Daemon struct {
	Config Config
	DB     *sqlite.DB
	Server *api.Server

	Ledger     *ledger.Service
	Reputation *reputation.Service
	Registry   *params.Service
	Guard      *params.Guard
	Polls      *poll.Service
	Stakes     *stake.Service
	Consensus  *consensus.Analyzer
	Rollback   *rollback.Service

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New(version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, version)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, version string) (*Daemon, error) {
	db, err := sqlite.Open(janusHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	led := ledger.NewService()
	rep := reputation.NewService()
	registry := params.NewService(db)
	guard := params.NewGuard()

	if err := registry.Seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed parameters: %w", err)
	}
	err = db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SeedFounderState(cfg.Governance.FounderTokens, time.Now().Unix())
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seed founder state: %w", err)
	}

	d := &Daemon{
		Config:     cfg,
		DB:         db,
		Ledger:     led,
		Reputation: rep,
		Registry:   registry,
		Guard:      guard,
		Polls:      poll.NewService(db, led, rep, rep, registry, guard),
		Stakes:     stake.NewService(db, led),
		Consensus:  consensus.NewAnalyzer(db),
		Rollback:   rollback.NewService(db, rep, rep, cfg.Governance.FounderID),
	}

	srv := api.NewServer(db, d.Polls, d.Stakes, d.Consensus, registry, d.Rollback, led, version)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and the action sweeper, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.sweepActions(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("Janus serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// sweepActions periodically executes scheduled actions whose time has come.
func (d *Daemon) sweepActions(ctx context.Context) {
	ticker := time.NewTicker(d.Config.Governance.SweepIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := d.Rollback.ProcessDueActions()
			if err != nil {
				log.Printf("[daemon] action sweep: %v", err)
				continue
			}
			for _, a := range processed {
				metrics.ActionsProcessed.WithLabelValues(string(a.Status)).Inc()
				log.Printf("[daemon] action %s (%s=%s) -> %s", a.ID, a.ParamName, a.NewValue, a.Status)
			}
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
