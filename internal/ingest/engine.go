package ingest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
)

// Engine orchestrates source sync runs.
type Engine struct {
	pool    db.Pool
	fetcher fetcher.Fetcher
	syncLog *Log
	reg     *Registry
	tempDir string
	clock   clockwork.Clock
}

// RunOpts configures which sources to sync and how.
type RunOpts struct {
	Sources []string // restrict to specific source names
	Force   bool     // ignore ShouldRun() scheduling
}

// NewEngine creates a new sync engine.
func NewEngine(pool db.Pool, f fetcher.Fetcher, syncLog *Log, reg *Registry, tempDir string, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		pool:    pool,
		fetcher: f,
		syncLog: syncLog,
		reg:     reg,
		tempDir: tempDir,
		clock:   clock,
	}
}

// Run iterates over the selected sources, checks if each needs syncing,
// and runs the sync. Results are recorded in the sync log.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "ingest.engine"))
	now := e.clock.Now().UTC()

	sources, err := e.reg.Select(opts.Sources)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		log.Info("no sources selected")
		return nil
	}

	log.Info("selected sources", zap.Int("count", len(sources)))

	var synced, skipped, failed int

	for _, src := range sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		srcLog := log.With(zap.String("source", src.Name()), zap.String("cadence", string(src.Cadence())))

		if !opts.Force {
			lastSync, err := e.syncLog.LastSuccess(ctx, src.Name())
			if err != nil {
				return eris.Wrapf(err, "engine: check last sync for %s", src.Name())
			}

			if !src.ShouldRun(now, lastSync) {
				srcLog.Debug("skipping (not due)")
				skipped++
				continue
			}
		}

		srcLog.Info("starting sync")
		syncID, err := e.syncLog.Start(ctx, src.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: start sync log for %s", src.Name())
		}

		start := time.Now()
		result, err := src.Sync(ctx, e.pool, e.fetcher, e.tempDir)
		elapsed := time.Since(start)

		if err != nil {
			srcLog.Error("sync failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.syncLog.Fail(ctx, syncID, err.Error()); logErr != nil {
				srcLog.Error("failed to record sync failure", zap.Error(logErr))
			}
			failed++
			continue
		}

		if err := e.syncLog.Complete(ctx, syncID, result); err != nil {
			srcLog.Error("failed to record sync completion", zap.Error(err))
		}

		srcLog.Info("sync complete",
			zap.Int64("rows", result.RowsSynced),
			zap.Duration("elapsed", elapsed),
		)
		synced++
	}

	log.Info("engine run complete",
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}
