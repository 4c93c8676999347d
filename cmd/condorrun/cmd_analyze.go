package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/condorrun/internal/risk"
	"github.com/sawpanic/condorrun/internal/strategy"
	"github.com/sawpanic/condorrun/internal/trader"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		symbols []string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one cycle in dry-run mode and print the opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(symbols) > 0 {
				cfg.Watchlist = upper(symbols)
			}
			cfg.Database.Enabled = false

			a, err := newApp(cmd.Context(), cfg, appOptions{dryRun: true})
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.trader.RunCycle(cmd.Context())
			if err != nil && cmd.Context().Err() == nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, report)
			}
			printReport(os.Stdout, report)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Symbols to analyze (default: watchlist)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cycle report as JSON")
	return cmd
}

func printReport(w io.Writer, r trader.CycleReport) {
	safe, reason := risk.MarketCheck(r.Snapshot)
	fmt.Fprintf(w, "Market: VIX %.1f, index %+.2f%% (%s)\n\n", r.Snapshot.VolatilityIndex, r.Snapshot.IndexChange*100, reason)
	if !safe {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSTRATEGY\tSTRIKES\tCREDIT\tMAX LOSS\tPOP\tR/R\tDELTA")
	for _, q := range r.Quotes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%.1f%%\t%.3f\t%s\n",
			q.Symbol, q.Kind, ladder(q.Strikes), q.Metrics.NetCredit, q.Metrics.MaxLoss,
			q.Metrics.ProbabilityOfProfit*100, q.Metrics.RiskReward, optional(q.Metrics.Greeks.Delta))
	}
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSTRATEGY\tDECISION\tDETAIL")
	for _, d := range r.Decisions {
		detail := d.Detail
		if i := strings.IndexByte(detail, '\n'); i >= 0 {
			detail = detail[:i]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Symbol, d.Strategy, d.Code, detail)
	}
	tw.Flush()

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func ladder(s strategy.Strikes) string {
	return fmt.Sprintf("%.2f/%.2f/%.2f/%.2f", s.LongPut, s.ShortPut, s.ShortCall, s.LongCall)
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

func upper(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

