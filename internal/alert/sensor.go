package alert

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/metrics"
	"github.com/lalithlochan/aquamon/internal/notify"
	"github.com/lalithlochan/aquamon/internal/redis"
	"github.com/lalithlochan/aquamon/internal/threshold"
)

const (
	msgWithinThreshold = "reading within threshold, no action needed"
	msgNoRecipients    = "no recipients with a registered device token"
	msgSuppressed      = "alert suppressed, same alert sent recently"
)

// SensorEvent is a reading that has already been evaluated
type SensorEvent struct {
	ModuleID   int64
	SensorID   int64
	SensorType string
	Value      float64
	Evaluation *threshold.Result
}

type SensorAlertHandler struct {
	modules    ModuleDirectory
	resolver   RecipientResolver
	cooldown   Cooldown
	dispatcher *dispatcher
	logger     *zap.Logger
}

func NewSensorAlertHandler(deps Deps, logger *zap.Logger) *SensorAlertHandler {
	return &SensorAlertHandler{
		modules:    deps.Modules,
		resolver:   deps.Resolver,
		cooldown:   deps.Cooldown,
		dispatcher: newDispatcher(deps, logger),
		logger:     logger,
	}
}

func (e SensorEvent) validate() error {
	switch {
	case e.ModuleID <= 0:
		return apperr.Missing("moduleId")
	case e.SensorID <= 0:
		return apperr.Missing("sensorId")
	case strings.TrimSpace(e.SensorType) == "":
		return apperr.Missing("sensorType")
	case e.Evaluation == nil:
		return apperr.Missing("evaluation")
	}
	return nil
}

// Handle notifies the module's owner and monitors about an out-of-range
// reading. Only input and module lookup errors are returned; delivery
// failures are reported in the Result.
func (h *SensorAlertHandler) Handle(ctx context.Context, ev SensorEvent) (*Result, error) {
	kind := string(notify.TypeSensorAlert)

	if err := ev.validate(); err != nil {
		return nil, err
	}

	details, err := h.modules.GetModuleWithFarmAndOwner(ctx, ev.ModuleID)
	if err != nil {
		return nil, err
	}

	eval := ev.Evaluation
	if eval.InRange {
		metrics.RecordAlertEvaluated(kind, "in_range")
		return &Result{Success: true, NotifiedUserIDs: []int64{}, Message: msgWithinThreshold}, nil
	}

	key := redis.SensorKey(ev.ModuleID, ev.SensorID, eval.Violation)
	if !acquireCooldown(ctx, h.cooldown, key, h.logger) {
		metrics.RecordAlertEvaluated(kind, "suppressed")
		h.logger.Info("sensor alert suppressed",
			zap.Int64("module_id", ev.ModuleID),
			zap.Int64("sensor_id", ev.SensorID),
			zap.String("violation", eval.Violation),
		)
		return &Result{Success: true, NotifiedUserIDs: []int64{}, Suppressed: true, Message: msgSuppressed}, nil
	}

	rs, err := h.resolver.ForModule(ctx, details)
	if err != nil {
		releaseCooldown(ctx, h.cooldown, key, h.logger)
		return nil, err
	}

	if rs.Empty() {
		metrics.RecordAlertEvaluated(kind, "no_recipients")
		h.logger.Info("sensor alert has no reachable recipients",
			zap.Int64("module_id", ev.ModuleID),
			zap.Int("skipped", rs.Skipped),
		)
		releaseCooldown(ctx, h.cooldown, key, h.logger)
		return &Result{Success: true, NotifiedUserIDs: []int64{}, Skipped: rs.Skipped, Message: msgNoRecipients}, nil
	}

	input := notify.SensorAlertInput{
		ModuleID:   details.Module.ID,
		ModuleName: details.Module.Name,
		SensorID:   ev.SensorID,
		SensorType: ev.SensorType,
		Value:      ev.Value,
		Min:        eval.Min,
		Max:        eval.Max,
		Violation:  eval.Violation,
	}

	res := h.dispatcher.dispatch(ctx, notify.TypeSensorAlert, rs, func(token string) (notify.Variant, error) {
		in := input
		in.Recipient = token
		return notify.Create(notify.TypeSensorAlert, in)
	})
	releaseOnFailure(ctx, h.cooldown, key, res, h.logger)

	outcome := "dispatched"
	if !res.Success {
		outcome = "failed"
	}
	metrics.RecordAlertEvaluated(kind, outcome)

	h.logger.Info("sensor alert dispatched",
		zap.Int64("module_id", ev.ModuleID),
		zap.Int64("sensor_id", ev.SensorID),
		zap.Float64("value", ev.Value),
		zap.String("violation", eval.Violation),
		zap.Int("notified", len(res.NotifiedUserIDs)),
		zap.Int("failed", len(res.FailedUserIDs)),
	)

	return res, nil
}
