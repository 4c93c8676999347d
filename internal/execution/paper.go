package execution

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Gateway places a validated, confirmed order. Callers never assume success.
type Gateway interface {
	Execute(ctx context.Context, order Order) (Fill, error)
}

// EmergencyStopActive reports whether the stop file exists
func EmergencyStopActive(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// PaperGateway fills orders locally at the limit price less slippage
type PaperGateway struct {
	session  *Session
	stopFile string
	slippage float64
	now      func() time.Time
}

func NewPaperGateway(session *Session, stopFile string, slippage float64) *PaperGateway {
	return &PaperGateway{session: session, stopFile: stopFile, slippage: slippage, now: time.Now}
}

func (g *PaperGateway) Execute(ctx context.Context, order Order) (Fill, error) {
	fill := Fill{OrderID: order.ID, Quantity: order.Quantity, At: g.now().UTC()}

	if err := ctx.Err(); err != nil {
		fill.Status, fill.Message = Error, err.Error()
		return fill, err
	}
	if !g.session.Authenticated() {
		fill.Status, fill.Message = Error, ErrNotAuthenticated.Error()
		return fill, ErrNotAuthenticated
	}
	if EmergencyStopActive(g.stopFile) {
		fill.Status, fill.Message = Error, ErrEmergencyStop.Error()
		return fill, ErrEmergencyStop
	}
	if err := order.Validate(); err != nil {
		fill.Status, fill.Message = Rejected, err.Error()
		return fill, nil
	}

	fill.Status = Filled
	fill.FilledPrice = math.Round(order.LimitPrice*(1-g.slippage)*100) / 100
	log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("strategy", string(order.Strategy)).
		Int("quantity", order.Quantity).
		Float64("filled_price", fill.FilledPrice).
		Msg("Paper order filled")
	return fill, nil
}
