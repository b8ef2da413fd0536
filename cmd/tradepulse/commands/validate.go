package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/tradepulse/internal/strategyconfig"
)

// validateCmd checks a strategy profile without starting anything
var validateCmd = &cobra.Command{
	Use:   "validate PROFILE",
	Short: "전략 프로필 검증",
	Long: `Validates a strategy profile: unknown fields, directive ids, composite
weights summing to 1, cron schedule. Warnings are printed but do not fail.

Example:
  go run ./cmd/tradepulse validate config/strategy/default.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	profile, _, err := strategyconfig.Load(args[0])
	if err != nil {
		PrintError(err.Error())
		return err
	}

	snapshot, err := strategyconfig.NewSnapshot(profile)
	if err != nil {
		return err
	}

	for _, w := range strategyconfig.Warn(profile) {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}

	PrintSuccess(fmt.Sprintf("%s %s valid (hash %s)", snapshot.StrategyID, snapshot.Version, snapshot.ConfigHash[:12]))
	return nil
}
