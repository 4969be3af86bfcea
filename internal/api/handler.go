package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/alert"
	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/circuitbreaker"
	"github.com/lalithlochan/aquamon/internal/db"
	"github.com/lalithlochan/aquamon/internal/metrics"
	"github.com/lalithlochan/aquamon/internal/notify"
	"github.com/lalithlochan/aquamon/internal/push"
	"github.com/lalithlochan/aquamon/internal/redis"
	"github.com/lalithlochan/aquamon/internal/store"
	"github.com/lalithlochan/aquamon/internal/threshold"
)

// UserHeader carries the authenticated caller id, set by the upstream auth proxy
const UserHeader = "X-User-ID"

// MeasurementIngestor is satisfied by *alert.Ingestor
type MeasurementIngestor interface {
	Ingest(ctx context.Context, in alert.MeasurementInput) (*alert.IngestResult, error)
}

// PowerAlerter is satisfied by *alert.PowerAlertHandler
type PowerAlerter interface {
	Handle(ctx context.Context, ev alert.PowerEvent) (*alert.Result, error)
}

// NotificationService is satisfied by *store.Store
type NotificationService interface {
	Create(ctx context.Context, in store.CreateInput) (*db.Notification, error)
	ListForUser(ctx context.Context, userID int64, page, limit int, filter store.StateFilter) (*store.Page, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID int64) (*db.Notification, error)
}

// SensorDirectory is the slice of db.Directory the handlers need
type SensorDirectory interface {
	GetSensor(ctx context.Context, sensorID int64) (*db.Sensor, error)
	GetUser(ctx context.Context, userID int64) (*db.User, error)
	ReplaceThresholds(ctx context.Context, sensorID int64, min, max float64) ([]db.Threshold, error)
}

// Sender delivers a single push; the breaker-protected sender implements it
type Sender interface {
	Send(ctx context.Context, env push.Envelope) (push.SendResult, error)
}

// PushStatus reports transport state; *push.Client implements it
type PushStatus interface {
	IsMockMode() bool
	Provider() string
}

// Deps holds the handler's collaborators. Idempotency, Breaker and Health
// are optional.
type Deps struct {
	Ingestor      MeasurementIngestor
	Power         PowerAlerter
	Notifications NotificationService
	Directory     SensorDirectory
	Sender        Sender
	Push          PushStatus
	Breaker       *circuitbreaker.CircuitBreaker
	Idempotency   *redis.IdempotencyService
	Health        func(ctx context.Context) error
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	deps   Deps
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{
		logger: logger,
		deps:   deps,
	}
}

// MeasurementRequest is the body of POST /v1/measurements
type MeasurementRequest struct {
	SensorID   int64      `json:"sensor_id"`
	Value      *float64   `json:"value"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// IngestMeasurement handles POST /v1/measurements.
// Supports idempotency via the Idempotency-Key header, scoped per sensor.
func (h *Handler) IngestMeasurement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Malformed JSON body", err.Error())
		return
	}
	if req.SensorID <= 0 {
		h.writeAppError(w, r, "Invalid measurement", apperr.Missing("sensor_id"))
		return
	}
	if req.Value == nil {
		h.writeAppError(w, r, "Invalid measurement", apperr.Missing("value"))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	scope := "sensor:" + strconv.FormatInt(req.SensorID, 10)
	reserved := false

	if idempotencyKey != "" && h.deps.Idempotency != nil {
		cached, err := h.deps.Idempotency.CheckOrReserve(ctx, scope, idempotencyKey)
		switch {
		case errors.Is(err, redis.ErrDuplicateRequest):
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		case cached != nil:
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		default:
			reserved = true
		}
	}

	in := alert.MeasurementInput{SensorID: req.SensorID, Value: *req.Value}
	if req.RecordedAt != nil {
		in.RecordedAt = *req.RecordedAt
	}

	result, err := h.deps.Ingestor.Ingest(ctx, in)
	if err != nil {
		if reserved {
			if relErr := h.deps.Idempotency.Release(ctx, scope, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.writeAppError(w, r, "Failed to ingest measurement", err)
		return
	}

	resp := Response{Message: "measurement recorded", Data: result}
	if reserved {
		h.storeIdempotent(ctx, scope, idempotencyKey, http.StatusCreated, resp)
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) storeIdempotent(ctx context.Context, scope, key string, status int, resp Response) {
	if resp.Errors == nil {
		resp.Errors = []ErrorObject{}
	}
	body, err := json.Marshal(resp)
	if err == nil {
		err = h.deps.Idempotency.Store(ctx, scope, key, &redis.IdempotencyResult{StatusCode: status, Body: body}, redis.IdempotencyTTL)
	}
	if err != nil {
		h.logger.Warn("failed to store idempotency result",
			zap.Error(err),
			zap.String("idempotency_key", key),
		)
	}
}

// PowerEventRequest is the body of POST /v1/modules/{id}/power-events
type PowerEventRequest struct {
	EventType string               `json:"event_type"`
	Severity  string               `json:"severity,omitempty"`
	Metadata  notify.PowerMetadata `json:"metadata"`
}

// ReportPowerEvent handles POST /v1/modules/{id}/power-events
func (h *Handler) ReportPowerEvent(w http.ResponseWriter, r *http.Request) {
	moduleID, err := pathID(r, "id")
	if err != nil {
		h.writeAppError(w, r, "Invalid module ID", err)
		return
	}

	var req PowerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Malformed JSON body", err.Error())
		return
	}

	result, err := h.deps.Power.Handle(r.Context(), alert.PowerEvent{
		ModuleID:  moduleID,
		EventType: req.EventType,
		Severity:  req.Severity,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeAppError(w, r, "Failed to process power event", err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: result.Message, Data: result})
}

// SendRequest is the body of POST /v1/notifications
type SendRequest struct {
	UserID  int64           `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SendResponse reports the stored record and the delivery outcome
type SendResponse struct {
	Notification *db.Notification `json:"notification"`
	Delivery     push.SendResult  `json:"delivery"`
}

// SendNotification handles POST /v1/notifications. The payload is built into
// a variant addressed to the user's registered device, stored, then pushed.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Malformed JSON body", err.Error())
		return
	}
	if req.UserID <= 0 {
		h.writeAppError(w, r, "Invalid notification", apperr.Missing("user_id"))
		return
	}

	user, err := h.deps.Directory.GetUser(ctx, req.UserID)
	if err != nil {
		h.writeAppError(w, r, "Failed to load recipient", err)
		return
	}

	payload, err := addressPayload(req.Payload, user.Token())
	if err != nil {
		h.writeAppError(w, r, "Invalid notification", err)
		return
	}

	variant, err := notify.Create(notify.Type(req.Type), payload)
	if err != nil {
		h.writeAppError(w, r, "Invalid notification", err)
		return
	}

	notif, err := h.deps.Notifications.Create(ctx, store.CreateInput{
		OwnerUserID: &user.ID,
		ModuleID:    moduleOf(variant),
		Type:        string(variant.Type()),
		Title:       variant.Title(),
		Message:     variant.Body(),
		Data:        variant.Data(),
	})
	if err != nil {
		h.writeAppError(w, r, "Failed to store notification", err)
		return
	}

	delivery, err := h.deps.Sender.Send(ctx, variant.Envelope())
	if err != nil {
		h.logger.Warn("direct send failed",
			zap.Int64("notification_id", notif.ID),
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		writeJSON(w, apperr.HTTPStatus(err), Response{
			Message: "notification stored but delivery failed",
			Data:    SendResponse{Notification: notif, Delivery: delivery},
			Errors:  []ErrorObject{{Type: apperr.Kind(err), Title: "Delivery failed", Detail: err.Error()}},
		})
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Message: "notification sent",
		Data:    SendResponse{Notification: notif, Delivery: delivery},
	})
}

// addressPayload sets recipientToken on the raw payload unless the caller
// already supplied one.
func addressPayload(raw json.RawMessage, token string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, apperr.Missing("payload")
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, apperr.Invalid("payload", "must be a JSON object")
	}
	if existing, _ := fields["recipientToken"].(string); strings.TrimSpace(existing) == "" {
		fields["recipientToken"] = token
	}
	return json.Marshal(fields)
}

func moduleOf(v notify.Variant) *int64 {
	switch id := v.Data()["moduleId"].(type) {
	case int64:
		if id > 0 {
			return &id
		}
	}
	return nil
}

// ListNotifications handles GET /v1/notifications?page=&limit=&status=
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeAppError(w, r, "Missing caller", err)
		return
	}

	q := r.URL.Query()
	page, err := queryPagingParam(q.Get("page"), "page")
	if err != nil {
		h.writeAppError(w, r, "Invalid pagination", err)
		return
	}
	limit, err := queryPagingParam(q.Get("limit"), "limit")
	if err != nil {
		h.writeAppError(w, r, "Invalid pagination", err)
		return
	}

	field, status := "status", q.Get("status")
	if status == "" {
		field, status = "state", q.Get("state")
	}
	filter, err := store.ParseStateFilter(field, status)
	if err != nil {
		h.writeAppError(w, r, "Invalid filter", err)
		return
	}

	result, err := h.deps.Notifications.ListForUser(r.Context(), userID, page, limit, filter)
	if err != nil {
		h.writeAppError(w, r, "Failed to list notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "notifications retrieved",
		Data:    result.Items,
		Meta:    result.Pagination,
	})
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeAppError(w, r, "Missing caller", err)
		return
	}

	count, err := h.deps.Notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		h.writeAppError(w, r, "Failed to count notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "unread count", Data: map[string]int{"count": count}})
}

// MarkAsRead handles PATCH and PUT /v1/notifications/{id}/read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeAppError(w, r, "Missing caller", err)
		return
	}

	notificationID, err := pathID(r, "id")
	if err != nil {
		h.writeAppError(w, r, "Invalid notification ID", err)
		return
	}

	notif, err := h.deps.Notifications.MarkAsRead(r.Context(), notificationID, userID)
	if err != nil {
		h.writeAppError(w, r, "Failed to mark notification as read", err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "notification marked as read", Data: notif})
}

// ThresholdRequest is the body of PUT /v1/sensors/{id}/thresholds
type ThresholdRequest struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// ReplaceThresholds handles PUT /v1/sensors/{id}/thresholds
func (h *Handler) ReplaceThresholds(w http.ResponseWriter, r *http.Request) {
	sensorID, err := pathID(r, "id")
	if err != nil {
		h.writeAppError(w, r, "Invalid sensor ID", err)
		return
	}

	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Malformed JSON body", err.Error())
		return
	}
	switch {
	case req.Min == nil:
		h.writeAppError(w, r, "Invalid thresholds", apperr.Missing("min"))
		return
	case req.Max == nil:
		h.writeAppError(w, r, "Invalid thresholds", apperr.Missing("max"))
		return
	}
	if err := threshold.ValidateBounds(*req.Min, *req.Max); err != nil {
		h.writeAppError(w, r, "Invalid thresholds", err)
		return
	}

	if _, err := h.deps.Directory.GetSensor(r.Context(), sensorID); err != nil {
		h.writeAppError(w, r, "Failed to load sensor", err)
		return
	}

	rows, err := h.deps.Directory.ReplaceThresholds(r.Context(), sensorID, *req.Min, *req.Max)
	if err != nil {
		h.writeAppError(w, r, "Failed to update thresholds", err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "thresholds updated", Data: rows})
}

// PushStatusResponse describes the push transport and its breaker
type PushStatusResponse struct {
	Provider string                `json:"provider"`
	MockMode bool                  `json:"mock_mode"`
	Breaker  *circuitbreaker.Stats `json:"breaker,omitempty"`
}

// PushStatus handles GET /v1/push/status
func (h *Handler) PushStatus(w http.ResponseWriter, r *http.Request) {
	resp := PushStatusResponse{
		Provider: h.deps.Push.Provider(),
		MockMode: h.deps.Push.IsMockMode(),
	}
	if h.deps.Breaker != nil {
		stats := h.deps.Breaker.Stats()
		resp.Breaker = &stats
	}

	writeJSON(w, http.StatusOK, Response{Message: "push transport status", Data: resp})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Service unavailable", "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, Response{Message: "ok", Data: map[string]string{"status": "ok"}})
}

func callerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return 0, apperr.Missing(UserHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(UserHeader, "must be a positive integer")
	}
	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, fmt.Sprintf("must be a positive integer, got %q", raw))
	}
	return id, nil
}

// queryPagingParam parses an optional paging parameter. An absent value maps
// to 0 so the store applies its default; an explicit value must be >= 1.
func queryPagingParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid(field, "must be an integer")
	}
	if n < 1 {
		return 0, apperr.Invalid(field, "must be >= 1")
	}
	return n, nil
}
