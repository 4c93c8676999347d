package main

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/condorrun/internal/config"
)

const (
	appName = "CondorRun"
	version = "v0.4.0"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

var flags globalFlags

func (g *globalFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.StringVarP(&g.configPath, "config", "c", "", "Config file (default $CONDORRUN_CONFIG or "+config.DefaultPath+")")
	fs.StringVar(&g.logLevel, "log-level", "", "Override logging.level (debug|info|warn|error)")
	fs.BoolVar(&g.jsonLogs, "json-logs", false, "Emit JSON logs instead of console output")
	return fs
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	setupLogging(false)

	rootCmd := &cobra.Command{
		Use:     "condorrun",
		Short:   "Iron condor / iron butterfly paper trading bot",
		Version: version,
		Long: `CondorRun evaluates short-dated iron condors and iron butterflies on a
watchlist, prices them with Black-Scholes, Monte Carlo, Sobol QMC or binomial
models, validates them against portfolio risk limits and, once confirmed,
places them through a paper execution gateway.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(flags.jsonLogs)
			if flags.logLevel != "" {
				if lvl, err := zerolog.ParseLevel(flags.logLevel); err == nil {
					zerolog.SetGlobalLevel(lvl)
				}
			}
		},
	}
	rootCmd.PersistentFlags().AddFlagSet(flags.flagSet())

	rootCmd.AddCommand(
		newRunCmd(),
		newAnalyzeCmd(),
		newPriceCmd(),
		newMonitorCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			log.Warn().Err(exit.err).Msg(appName + " stopped")
			os.Exit(exit.code)
		}
		log.Error().Err(err).Msg(appName + " failed")
		os.Exit(1)
	}
}

// setupLogging writes human-readable logs on a terminal, JSON otherwise
func setupLogging(forceJSON bool) {
	if forceJSON || !term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// loadConfig loads the config and applies its log level unless overridden
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel == "" {
		zerolog.SetGlobalLevel(cfg.LogLevel())
	}
	return cfg, nil
}

// exitError carries a non-default exit code
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }
