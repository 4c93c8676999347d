package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/condorrun/internal/confirm"
	"github.com/sawpanic/condorrun/internal/execution"
	"github.com/sawpanic/condorrun/internal/trader"
)

func newRunCmd() *cobra.Command {
	var (
		cycles      int
		dryRun      bool
		autoConfirm bool
		noMonitor   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop",
		Long: `Runs a trading cycle every polling_interval: market gate, per-symbol
analysis, risk validation, operator confirmation, paper execution and
settlement. Creating the emergency stop file halts the loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if autoConfirm {
				cfg.Safeguards.AutoConfirm = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{prompter: confirm.NewTerminalPrompter(), dryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.close()

			if err := authenticate(ctx, a.session); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if cfg.Monitor.Enabled && !noMonitor {
				srv := a.server()
				g.Go(srv.Start)
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			g.Go(func() error {
				defer stop()
				return a.trader.Run(gctx, cycles, logReport)
			})

			err = g.Wait()
			if errors.Is(err, execution.ErrEmergencyStop) {
				return exitError{code: 3, err: err}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 0, "Stop after N cycles (0 = until interrupted)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Recommend trades without placing them")
	cmd.Flags().BoolVar(&autoConfirm, "auto-confirm", false, "Skip interactive confirmation")
	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Do not start the monitor server")
	return cmd
}

func logReport(r trader.CycleReport) {
	for _, w := range r.Warnings {
		log.Warn().Str("cycle_id", r.ID).Msg(w)
	}
	for _, d := range r.Decisions {
		log.Info().
			Str("symbol", d.Symbol).
			Str("strategy", d.Strategy).
			Str("code", string(d.Code)).
			Str("detail", d.Detail).
			Msg("Decision")
	}
}
