package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/db"
	"github.com/lalithlochan/aquamon/internal/threshold"
)

// SensorDirectory looks up sensors and records readings
type SensorDirectory interface {
	GetSensor(ctx context.Context, sensorID int64) (*db.Sensor, error)
	CreateMeasurement(ctx context.Context, m *db.Measurement) error
}

// Evaluator is satisfied by *threshold.Evaluator
type Evaluator interface {
	Evaluate(ctx context.Context, sensorID int64, sensorType string, value float64) (threshold.Result, error)
}

type MeasurementInput struct {
	SensorID   int64
	Value      float64
	RecordedAt time.Time
}

type IngestResult struct {
	Measurement *db.Measurement  `json:"measurement"`
	Evaluation  threshold.Result `json:"evaluation"`
	Alert       *Result          `json:"alert"`
}

// Ingestor stores a reading, evaluates it and hands it to the sensor handler
type Ingestor struct {
	sensors   SensorDirectory
	evaluator Evaluator
	handler   *SensorAlertHandler
	logger    *zap.Logger
}

func NewIngestor(sensors SensorDirectory, evaluator Evaluator, handler *SensorAlertHandler, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		sensors:   sensors,
		evaluator: evaluator,
		handler:   handler,
		logger:    logger,
	}
}

// Ingest persists the measurement before evaluating it, so a reading is kept
// even when the alert path fails.
func (i *Ingestor) Ingest(ctx context.Context, in MeasurementInput) (*IngestResult, error) {
	if in.SensorID <= 0 {
		return nil, apperr.Missing("sensor_id")
	}

	sensor, err := i.sensors.GetSensor(ctx, in.SensorID)
	if err != nil {
		return nil, err
	}

	m := &db.Measurement{
		SensorID:   sensor.ID,
		Value:      in.Value,
		RecordedAt: in.RecordedAt.UTC(),
	}
	if err := i.sensors.CreateMeasurement(ctx, m); err != nil {
		return nil, fmt.Errorf("store measurement: %w", err)
	}

	eval, err := i.evaluator.Evaluate(ctx, sensor.ID, sensor.Type, in.Value)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("measurement evaluated",
		zap.Int64("sensor_id", sensor.ID),
		zap.String("sensor_type", sensor.Type),
		zap.Float64("value", in.Value),
		zap.Bool("in_range", eval.InRange),
		zap.String("source", eval.Source),
	)

	res, err := i.handler.Handle(ctx, SensorEvent{
		ModuleID:   sensor.ModuleID,
		SensorID:   sensor.ID,
		SensorType: sensor.Type,
		Value:      in.Value,
		Evaluation: &eval,
	})
	if err != nil {
		return nil, err
	}

	return &IngestResult{Measurement: m, Evaluation: eval, Alert: res}, nil
}
