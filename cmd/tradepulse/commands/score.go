package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/tradepulse/internal/scoring"
)

// scoreCmd scores one symbol
var scoreCmd = &cobra.Command{
	Use:   "score SYMBOL",
	Short: "종목 스코어 계산",
	Long: `Runs directives for one symbol and prints each score.

Without --directives the profile's default directives are used.

Example:
  go run ./cmd/tradepulse score AAPL
  go run ./cmd/tradepulse score MSFT --directives rsi,macd,trend_strength --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

var scoreDirectives []string

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringSliceVarP(&scoreDirectives, "directives", "d", nil, "directive ids (comma separated)")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.Score(ctx, args[0], scoreDirectives)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(report)
	}
	printReport(report)
	return nil
}

func printReport(r *scoring.Report) {
	PrintDoubleSeparator()
	fmt.Printf("  %s  (%s)\n", r.Symbol, r.ScoredAt.Format("2006-01-02 15:04:05 MST"))
	if r.Profile != nil {
		fmt.Printf("  Profile   : %s %s\n", r.Profile.StrategyID, r.Profile.Version)
	}
	PrintSeparator()

	widths := []int{26, 10, 16, 28}
	PrintTableHeader([]string{"DIRECTIVE", "SCORE", "STATUS", "SIGNAL"}, widths)
	for _, id := range r.Directives {
		res := r.Results[id]
		PrintTableRow([]string{
			id,
			fmt.Sprintf("%.1f/%.0f", res.Score, res.MaxScore),
			string(res.Status),
			res.Signal,
		}, widths)
	}

	var failed []string
	for _, in := range r.Inputs {
		if in.Error != "" {
			failed = append(failed, fmt.Sprintf("%s: %s", in.Key, in.Error))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		PrintWarning("Inputs unavailable")
		PrintList(failed)
	}
	if !r.Freshness.Passed {
		PrintWarning("Stale inputs: " + strings.Join(r.Freshness.Failed(), ", "))
	}
	fmt.Printf("\nDone in %dms\n", r.DurationMs)
}
