package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wonny/tradepulse/internal/api"
	"github.com/wonny/tradepulse/internal/api/handlers"
	"github.com/wonny/tradepulse/internal/scheduler"
	"github.com/wonny/tradepulse/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- Finnhub 실시간 체결 스트림 연결 (FINNHUB_API_KEY 설정 시)
- 유지보수 스케줄러 실행 (store GC, stale price sweep, watchlist scoring)

Endpoints:
  GET  /health                      - Health check
  GET  /metrics                     - Prometheus metrics
  GET  /api/providers?kind=         - Provider catalog
  GET  /api/providers/{id}/usage    - Quota usage
  GET  /api/directives/{id}         - Max score + explanation
  GET  /api/scores/{symbol}         - Score a symbol
  GET  /api/prices                  - Streamed prices

Example:
  go run ./cmd/tradepulse api
  go run ./cmd/tradepulse api --port 8090 --no-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort     string
	noScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
	apiCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "스케줄러 비활성화")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// Scheduler
	var sched *scheduler.Scheduler
	if !noScheduler {
		sched, err = newScheduler(a)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	// Router
	h := api.Handlers{
		Health:     handlers.NewHealthHandler(a.store, log),
		Providers:  handlers.NewProviderHandler(a.providers, a.calls, log),
		Directives: handlers.NewDirectiveHandler(a.engine, log),
		Scores:     handlers.NewScoreHandler(a.engine, log),
		Prices:     handlers.NewPriceHandler(a.prices, log),
	}
	var gatherer prometheus.Gatherer
	if a.gatherer != nil {
		gatherer = a.gatherer
	}
	server := api.New(cfg, log, api.NewRouter(h, gatherer, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", cfg.Port))
	PrintInfo("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// newScheduler registers the maintenance jobs and, when the profile names one,
// the watchlist job. Schedules run in US market time.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		a.log.WithError(err).Warn("Market timezone unavailable, using UTC")
		loc = time.UTC
	}

	sched := scheduler.New(a.log, scheduler.WithLocation(loc))

	list := []scheduler.Job{
		jobs.NewStoreGCJob(a.store, a.log),
		jobs.NewPriceSweepJob(a.prices, a.log),
	}
	s := a.profile.Scoring
	if s.WatchlistSchedule != "" && len(s.Watchlist) > 0 {
		list = append(list, jobs.NewWatchlistJob(a.engine, s.Watchlist, s.WatchlistSchedule, a.log))
	}

	for _, job := range list {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
