package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/providers"
)

// providersCmd lists the provider catalog
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "프로바이더 목록",
	Long: `Lists the provider catalog with published quotas.

Example:
  go run ./cmd/tradepulse providers
  go run ./cmd/tradepulse providers --kind trading`,
	Args: cobra.NoArgs,
	RunE: runProviders,
}

// usageCmd shows the rate ledger for one provider
var usageCmd = &cobra.Command{
	Use:   "usage PROVIDER",
	Short: "프로바이더 호출량 조회",
	Long: `Shows calls counted in the current UTC minute and day against the quota.
Counts come from the configured store, so use STORE_BACKEND=redis or postgres
to see usage recorded by a running server.

Example:
  go run ./cmd/tradepulse usage alpha_vantage`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

var providerKind string

func init() {
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(usageCmd)

	providersCmd.Flags().StringVar(&providerKind, "kind", "", "filter: trading | data")
}

func runProviders(cmd *cobra.Command, args []string) error {
	kind, err := providers.ParseKind(providerKind)
	if err != nil {
		return err
	}

	reg, err := providers.Load(nil)
	if err != nil {
		return err
	}
	list := reg.List(kind)

	if jsonOutput {
		return printJSON(list)
	}

	widths := []int{24, 28, 8, 10, 10}
	PrintTableHeader([]string{"ID", "NAME", "KIND", "PER MIN", "PER DAY"}, widths)
	for _, p := range list {
		PrintTableRow([]string{
			p.ID,
			p.Name,
			string(p.Kind()),
			quotaText(p.Quota.PerMinute),
			quotaText(p.Quota.PerDay),
		}, widths)
	}
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	usage, err := a.calls.Usage(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(usage)
	}
	printUsage(usage)
	return nil
}

func printUsage(u callcache.Usage) {
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", u.Provider)
	PrintSeparator()
	PrintKeyValue("Minute", fmt.Sprintf("%d / %s (remaining %s)", u.MinuteCount, quotaText(u.QuotaPerMinute), remainingText(u.MinuteRemaining)), 10)
	PrintKeyValue("Day", fmt.Sprintf("%d / %s (remaining %s)", u.DayCount, quotaText(u.QuotaPerDay), remainingText(u.DayRemaining)), 10)
	PrintKeyValue("In flight", strconv.Itoa(u.InFlight), 10)
}

// quotaText renders a quota, where zero means unlimited
func quotaText(n int) string {
	if n <= 0 {
		return "∞"
	}
	return strconv.Itoa(n)
}

// remainingText renders a remaining count, where -1 means unlimited
func remainingText(n int) string {
	if n < 0 {
		return "∞"
	}
	return strconv.Itoa(n)
}
