package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/tradepulse/internal/directives"
	"github.com/wonny/tradepulse/internal/scoring"
)

// explainCmd describes directives without touching market data
var explainCmd = &cobra.Command{
	Use:   "explain [ID]",
	Short: "디렉티브 설명",
	Long: `Prints a directive's max score, parameters and explanation.
Without an ID every directive is listed.

Example:
  go run ./cmd/tradepulse explain
  go run ./cmd/tradepulse explain rsi --param oversold=25`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

var explainParams map[string]string

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringToStringVarP(&explainParams, "param", "p", nil, "parameter override key=value")
}

func runExplain(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		list := a.engine.List()
		if jsonOutput {
			return printJSON(list)
		}
		widths := []int{26, 34, 6, 10}
		PrintTableHeader([]string{"ID", "NAME", "MAX", "COMPOSITE"}, widths)
		for _, d := range list {
			comp := ""
			if d.Composite {
				comp = "yes"
			}
			PrintTableRow([]string{d.ID, d.Name, fmt.Sprintf("%.0f", d.MaxScore), comp}, widths)
		}
		return nil
	}

	override := directives.Params{}
	for k, v := range explainParams {
		override[k] = v
	}
	desc, err := a.engine.Describe(args[0], override)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(desc)
	}
	printDescription(desc)
	return nil
}

func printDescription(d scoring.Description) {
	PrintDoubleSeparator()
	fmt.Printf("  %s (%s)\n", d.Name, d.ID)
	PrintSeparator()
	PrintKeyValue("Max score", fmt.Sprintf("%.0f", d.MaxScore), 10)
	PrintKeyValue("Inputs", strings.Join(d.Inputs, ", "), 10)

	fmt.Println("\n  Parameters")
	for _, k := range directives.SortedKeys(d.Params) {
		PrintKeyValue(k, fmt.Sprint(d.Params[k]), 24)
	}

	if len(d.Children) > 0 {
		fmt.Println("\n  Children")
		for _, c := range d.Children {
			PrintKeyValue(c.Directive, fmt.Sprintf("%.2f", c.Weight), 24)
		}
	}

	fmt.Println()
	fmt.Println(d.Explanation)
}
