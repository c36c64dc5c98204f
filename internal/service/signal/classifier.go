package signal

import (
	"errors"
	"fmt"
	"math"

	"SignalView/internal/domain/models"
	domsvc "SignalView/internal/domain/service"
	"SignalView/internal/snapshot"
)

// ErrProbabilityOutOfRange is returned for NaN or values outside [0,1].
var ErrProbabilityOutOfRange = errors.New("probability out of range [0,1]")

// ThresholdClassifier maps proba_up to BUY/SELL/HOLD using two cutoffs.
type ThresholdClassifier struct {
	buy  float64
	sell float64
}

// NewThresholdClassifier requires 0 <= sell < buy <= 1.
func NewThresholdClassifier(buy, sell float64) (*ThresholdClassifier, error) {
	if math.IsNaN(buy) || math.IsNaN(sell) || buy < 0 || buy > 1 || sell < 0 || sell > 1 {
		return nil, snapshot.ConfigError("thresholds must be within [0,1], got buy=%v sell=%v", buy, sell)
	}
	if sell >= buy {
		return nil, snapshot.ConfigError("sell threshold %v must be below buy threshold %v", sell, buy)
	}
	return &ThresholdClassifier{buy: buy, sell: sell}, nil
}

// Classify is inclusive at both cutoffs.
func (c *ThresholdClassifier) Classify(p float64) (models.Signal, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return models.SignalInvalid, fmt.Errorf("%w: %v", ErrProbabilityOutOfRange, p)
	}
	switch {
	case p >= c.buy:
		return models.SignalBuy, nil
	case p <= c.sell:
		return models.SignalSell, nil
	default:
		return models.SignalHold, nil
	}
}

func (c *ThresholdClassifier) Buy() float64  { return c.buy }
func (c *ThresholdClassifier) Sell() float64 { return c.sell }

var _ domsvc.Classifier = (*ThresholdClassifier)(nil)
