package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/condorrun/internal/pricing"
	"github.com/sawpanic/condorrun/internal/strategy"
)

func newPriceCmd() *cobra.Command {
	var (
		in        pricing.Input
		model     string
		optType   string
		days      float64
		compare   bool
		structure bool
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a single option with one or all models",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.T = days / strategy.DaysPerYear
			in.Type = pricing.OptionType(optType)

			models := []pricing.Model{}
			if compare {
				models = append(models, pricing.BlackScholes, pricing.MonteCarlo, pricing.QuasiMonteCarlo, pricing.Binomial)
			} else {
				m, err := pricing.ParseModel(model)
				if err != nil {
					return err
				}
				models = append(models, m)
			}

			engine := pricing.NewEngine()
			type row struct {
				pricing.Result
				ElapsedMS float64 `json:"elapsed_ms"`
			}
			rows := make([]row, 0, len(models))
			for _, m := range models {
				start := time.Now()
				res := engine.Price(m, in)
				rows = append(rows, row{Result: res, ElapsedMS: float64(time.Since(start).Microseconds()) / 1000})
			}
			if structure {
				return writeJSON(os.Stdout, rows)
			}
			for _, r := range rows {
				if !r.OK() {
					fmt.Printf("%-18s %s: %s\n", r.Model, r.Status, r.Message)
					continue
				}
				if r.Greeks == nil {
					fmt.Printf("%-18s price %.4f  (%.2fms)\n", r.Model, r.Price, r.ElapsedMS)
					continue
				}
				fmt.Printf("%-18s price %.4f  delta %.4f  gamma %s  theta %s  vega %s  (%.2fms)\n",
					r.Model, r.Price, r.Greeks.Delta, optional(r.Greeks.Gamma), optional(r.Greeks.Theta),
					optional(r.Greeks.Vega), r.ElapsedMS)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&in.Spot, "spot", 100, "Underlying price")
	f.Float64Var(&in.Strike, "strike", 100, "Strike price")
	f.Float64Var(&days, "days", 30, "Days to expiration")
	f.Float64Var(&in.Rate, "rate", 0.01, "Risk-free rate")
	f.Float64Var(&in.Vol, "vol", 0.2, "Implied volatility")
	f.StringVar(&optType, "type", "call", "Option type (call|put)")
	f.StringVarP(&model, "model", "m", "black_scholes", "Pricing model (black_scholes|monte_carlo|quasi_monte_carlo|binomial)")
	f.IntVar(&in.Params.Simulations, "simulations", pricing.DefaultSimulations, "MC/QMC sample count")
	f.IntVar(&in.Params.Steps, "steps", pricing.DefaultSteps, "Binomial steps")
	f.BoolVar(&in.Params.American, "american", false, "Allow early exercise (binomial only)")
	f.Uint64Var(&in.Params.Seed, "seed", 1, "Random seed (0 = unseeded)")
	f.BoolVar(&compare, "compare", false, "Price with every model")
	f.BoolVar(&structure, "json", false, "Print results as JSON")
	return cmd
}
