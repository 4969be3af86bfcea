package alert

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/metrics"
	"github.com/lalithlochan/aquamon/internal/notify"
	"github.com/lalithlochan/aquamon/internal/redis"
)

// PowerEvent is a power supply event reported for a module
type PowerEvent struct {
	ModuleID  int64                `json:"moduleId"`
	EventType string               `json:"eventType"`
	Severity  string               `json:"severity,omitempty"`
	Metadata  notify.PowerMetadata `json:"metadata"`
}

type PowerAlertHandler struct {
	modules    ModuleDirectory
	resolver   RecipientResolver
	cooldown   Cooldown
	dispatcher *dispatcher
	logger     *zap.Logger
}

func NewPowerAlertHandler(deps Deps, logger *zap.Logger) *PowerAlertHandler {
	return &PowerAlertHandler{
		modules:    deps.Modules,
		resolver:   deps.Resolver,
		cooldown:   deps.Cooldown,
		dispatcher: newDispatcher(deps, logger),
		logger:     logger,
	}
}

// Handle fans a power event out to the module's owner and monitors. Power
// events are always alert-worthy, there is no evaluation step.
func (h *PowerAlertHandler) Handle(ctx context.Context, ev PowerEvent) (*Result, error) {
	kind := string(notify.TypePowerAlert)

	if ev.ModuleID <= 0 {
		return nil, apperr.Missing("moduleId")
	}
	event := strings.ToLower(strings.TrimSpace(ev.EventType))
	if event == "" {
		return nil, apperr.Missing("eventType")
	}
	severity, err := notify.ResolveSeverity(event, ev.Severity)
	if err != nil {
		return nil, err
	}

	details, err := h.modules.GetModuleWithFarmAndOwner(ctx, ev.ModuleID)
	if err != nil {
		return nil, err
	}

	key := redis.PowerKey(ev.ModuleID, event)
	if !acquireCooldown(ctx, h.cooldown, key, h.logger) {
		metrics.RecordAlertEvaluated(kind, "suppressed")
		h.logger.Info("power alert suppressed",
			zap.Int64("module_id", ev.ModuleID),
			zap.String("event_type", event),
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
		h.logger.Info("power alert has no reachable recipients",
			zap.Int64("module_id", ev.ModuleID),
			zap.Int("skipped", rs.Skipped),
		)
		releaseCooldown(ctx, h.cooldown, key, h.logger)
		return &Result{Success: true, NotifiedUserIDs: []int64{}, Skipped: rs.Skipped, Message: msgNoRecipients}, nil
	}

	input := notify.PowerAlertInput{
		ModuleID:   details.Module.ID,
		ModuleName: details.Module.Name,
		FarmID:     details.Farm.ID,
		EventType:  event,
		Severity:   severity,
		Metadata:   ev.Metadata,
	}

	res := h.dispatcher.dispatch(ctx, notify.TypePowerAlert, rs, func(token string) (notify.Variant, error) {
		in := input
		in.Recipient = token
		return notify.Create(notify.TypePowerAlert, in)
	})
	releaseOnFailure(ctx, h.cooldown, key, res, h.logger)

	outcome := "dispatched"
	if !res.Success {
		outcome = "failed"
	}
	metrics.RecordAlertEvaluated(kind, outcome)

	h.logger.Info("power alert dispatched",
		zap.Int64("module_id", ev.ModuleID),
		zap.String("event_type", event),
		zap.String("severity", severity),
		zap.Int("notified", len(res.NotifiedUserIDs)),
		zap.Int("failed", len(res.FailedUserIDs)),
	)

	return res, nil
}
