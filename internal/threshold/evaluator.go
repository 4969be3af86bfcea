// Package threshold classifies sensor readings against configured or built-in bounds.
package threshold

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/db"
)

// Source values
const (
	SourceConfigured = "configured"
	SourceDefault    = "default"
)

// Violation values
const (
	ViolationBelowMin = "below_min"
	ViolationAboveMax = "above_max"
)

// Bounds is an inclusive [Min, Max] range
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range, both ends included
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Defaults is the built-in table used when a sensor has no configured min/max pair.
var Defaults = map[string]Bounds{
	"temperature": {Min: 20, Max: 30},
	"ph":          {Min: 6.5, Max: 8.5},
	"oxygen":      {Min: 5, Max: 12},
	"turbidity":   {Min: 0, Max: 50},
	"humidity":    {Min: 30, Max: 80},
	"proximity":   {Min: 5, Max: 100},
	"tds":         {Min: 0, Max: 500},
}

// Result is the outcome of evaluating one reading
type Result struct {
	InRange   bool    `json:"inRange"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Source    string  `json:"source"`
	Violation string  `json:"violation,omitempty"`
}

// Source loads configured thresholds
type Source interface {
	GetActiveThresholds(ctx context.Context, sensorID int64) ([]db.Threshold, error)
}

// Evaluator classifies readings against configured or default thresholds
type Evaluator struct {
	source Source
	logger *zap.Logger
}

// NewEvaluator creates a new threshold evaluator
func NewEvaluator(source Source, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		source: source,
		logger: logger,
	}
}

// Evaluate classifies value for the given sensor. Configured thresholds win only
// when both a min and a max row are active; otherwise the built-in default for
// sensorType applies.
func (e *Evaluator) Evaluate(ctx context.Context, sensorID int64, sensorType string, value float64) (Result, error) {
	bounds, source, err := e.bounds(ctx, sensorID, sensorType)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		InRange: bounds.Contains(value),
		Min:     bounds.Min,
		Max:     bounds.Max,
		Source:  source,
	}
	switch {
	case value < bounds.Min:
		res.Violation = ViolationBelowMin
	case value > bounds.Max:
		res.Violation = ViolationAboveMax
	}

	e.logger.Debug("reading evaluated",
		zap.Int64("sensor_id", sensorID),
		zap.String("sensor_type", sensorType),
		zap.Float64("value", value),
		zap.Bool("in_range", res.InRange),
		zap.String("source", source),
	)

	return res, nil
}

func (e *Evaluator) bounds(ctx context.Context, sensorID int64, sensorType string) (Bounds, string, error) {
	thresholds, err := e.source.GetActiveThresholds(ctx, sensorID)
	if err != nil {
		return Bounds{}, "", fmt.Errorf("load thresholds for sensor %d: %w", sensorID, err)
	}

	var min, max *float64
	for i := range thresholds {
		t := thresholds[i]
		if !t.Active {
			continue
		}
		switch t.Kind {
		case db.ThresholdMin:
			min = &t.Value
		case db.ThresholdMax:
			max = &t.Value
		}
	}
	if min != nil && max != nil {
		return Bounds{Min: *min, Max: *max}, SourceConfigured, nil
	}

	if b, ok := Defaults[normalize(sensorType)]; ok {
		return b, SourceDefault, nil
	}

	return Bounds{}, "", fmt.Errorf("%w: %q", apperr.ErrUnsupportedSensorType, sensorType)
}

// ValidateBounds rejects an inverted range before it is stored
func ValidateBounds(min, max float64) error {
	if min > max {
		return apperr.Invalid("min", fmt.Sprintf("must be <= max (got min=%g, max=%g)", min, max))
	}
	return nil
}

func normalize(sensorType string) string {
	return strings.ToLower(strings.TrimSpace(sensorType))
}
