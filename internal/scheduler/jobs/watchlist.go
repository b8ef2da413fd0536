package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/tradepulse/internal/scoring"
	"github.com/wonny/tradepulse/pkg/logger"
)

// Scorer runs directives for a symbol
type Scorer interface {
	Score(ctx context.Context, symbol string, ids []string) (*scoring.Report, error)
}

// WatchlistJob scores every watchlist symbol with the default directives so the
// call cache is warm before anyone asks.
// ⭐ SSOT: 워치리스트 스코어링 스케줄은 이 Job에서만
type WatchlistJob struct {
	scorer   Scorer
	symbols  []string
	schedule string
	logger   *logger.Logger

	// OnReport receives each finished report; optional
	OnReport func(*scoring.Report)
}

// NewWatchlistJob creates a new watchlist job
func NewWatchlistJob(scorer Scorer, symbols []string, schedule string, log *logger.Logger) *WatchlistJob {
	return &WatchlistJob{
		scorer:   scorer,
		symbols:  append([]string(nil), symbols...),
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *WatchlistJob) Name() string {
	return "watchlist_scoring"
}

// Schedule returns the profile's cron schedule
func (j *WatchlistJob) Schedule() string {
	return j.schedule
}

// Run scores each symbol in turn. One failing symbol does not stop the rest.
func (j *WatchlistJob) Run(ctx context.Context) error {
	var errs []error
	scored := 0

	for _, symbol := range j.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, err := j.scorer.Score(ctx, symbol, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		scored++

		if j.OnReport != nil {
			j.OnReport(report)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols": len(j.symbols),
		"scored":  scored,
	}).Info("Watchlist scored")

	return errors.Join(errs...)
}
