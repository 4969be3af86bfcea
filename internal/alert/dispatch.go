// Package alert turns sensor readings and power events into per-recipient
// notifications: resolve who to tell, build the payload, persist it and push it.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/aquamon/internal/db"
	"github.com/lalithlochan/aquamon/internal/metrics"
	"github.com/lalithlochan/aquamon/internal/notify"
	"github.com/lalithlochan/aquamon/internal/push"
	"github.com/lalithlochan/aquamon/internal/recipients"
	"github.com/lalithlochan/aquamon/internal/store"
)

const DefaultDispatchConcurrency = 8

// ModuleDirectory loads the module an alert refers to
type ModuleDirectory interface {
	GetModuleWithFarmAndOwner(ctx context.Context, moduleID int64) (*db.ModuleDetails, error)
}

// RecipientResolver is satisfied by *recipients.Resolver
type RecipientResolver interface {
	ForModule(ctx context.Context, details *db.ModuleDetails) (*recipients.Recipients, error)
}

// NotificationStore is satisfied by *store.Store
type NotificationStore interface {
	Create(ctx context.Context, in store.CreateInput) (*db.Notification, error)
}

// Sender is satisfied by *push.Client and *circuitbreaker.ProtectedSender
type Sender interface {
	Send(ctx context.Context, env push.Envelope) (push.SendResult, error)
}

// Cooldown suppresses repeats of the same alert inside a window.
// *redis.AlertCooldown implements it.
type Cooldown interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Deps groups the collaborators shared by both handlers. Cooldown is optional.
type Deps struct {
	Modules     ModuleDirectory
	Resolver    RecipientResolver
	Store       NotificationStore
	Sender      Sender
	Cooldown    Cooldown
	Concurrency int
}

// Result is what a handler reports back to its caller, including under
// partial failure.
type Result struct {
	Success         bool    `json:"success"`
	NotifiedUserIDs []int64 `json:"notifiedUserIds"`
	FailedUserIDs   []int64 `json:"failedUserIds,omitempty"`
	Skipped         int     `json:"skipped,omitempty"`
	Suppressed      bool    `json:"suppressed,omitempty"`
	Message         string  `json:"message"`
}

const (
	roleOwner   = "owner"
	roleMonitor = "monitor"
)

// buildFunc constructs the variant for one recipient token
type buildFunc func(token string) (notify.Variant, error)

type dispatcher struct {
	store       NotificationStore
	sender      Sender
	concurrency int
	logger      *zap.Logger
}

func newDispatcher(deps Deps, logger *zap.Logger) *dispatcher {
	n := deps.Concurrency
	if n <= 0 {
		n = DefaultDispatchConcurrency
	}
	return &dispatcher{
		store:       deps.Store,
		sender:      deps.Sender,
		concurrency: n,
		logger:      logger,
	}
}

type outcome struct {
	userID int64
	err    error
}

// dispatch notifies the owner first, then every monitor concurrently. A
// failure for one recipient never stops the others.
func (d *dispatcher) dispatch(ctx context.Context, kind notify.Type, rs *recipients.Recipients, build buildFunc) *Result {
	start := time.Now()
	defer func() { metrics.RecordDispatchDuration(string(kind), time.Since(start)) }()

	moduleID := rs.Module.Module.ID
	var results []outcome

	if rs.Owner != nil {
		err := d.deliver(ctx, kind, moduleID, *rs.Owner, roleOwner, build)
		results = append(results, outcome{userID: rs.Owner.UserID, err: err})
	}

	monitorResults := make([]outcome, len(rs.Monitors))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, m := range rs.Monitors {
		g.Go(func() error {
			monitorResults[i] = outcome{userID: m.UserID, err: d.deliver(ctx, kind, moduleID, m, roleMonitor, build)}
			return nil
		})
	}
	_ = g.Wait()
	results = append(results, monitorResults...)

	res := &Result{NotifiedUserIDs: []int64{}, Skipped: rs.Skipped}
	for _, r := range results {
		if r.err != nil {
			res.FailedUserIDs = append(res.FailedUserIDs, r.userID)
			continue
		}
		res.NotifiedUserIDs = append(res.NotifiedUserIDs, r.userID)
	}

	attempted := len(results)
	notified := len(res.NotifiedUserIDs)
	res.Success = notified > 0 || attempted == 0

	switch {
	case notified == attempted:
		res.Message = fmt.Sprintf("notified %d recipient(s)", notified)
	case notified == 0:
		res.Message = fmt.Sprintf("failed to notify any of %d recipient(s)", attempted)
	default:
		res.Message = fmt.Sprintf("notified %d of %d recipient(s)", notified, attempted)
	}

	return res
}

// deliver persists and pushes one notification. The record is kept when the
// push fails.
func (d *dispatcher) deliver(ctx context.Context, kind notify.Type, moduleID int64, rcpt recipients.Recipient, role string, build buildFunc) error {
	log := d.logger.With(
		zap.String("kind", string(kind)),
		zap.Int64("module_id", moduleID),
		zap.Int64("user_id", rcpt.UserID),
		zap.String("role", role),
	)

	v, err := build(rcpt.Token)
	if err != nil {
		metrics.RecordDelivery(string(kind), "failed")
		log.Error("failed to build notification", zap.Error(err))
		return fmt.Errorf("build %s: %w", kind, err)
	}

	userID := rcpt.UserID
	mid := moduleID
	notif, err := d.store.Create(ctx, store.CreateInput{
		OwnerUserID: &userID,
		ModuleID:    &mid,
		Type:        string(v.Type()),
		Title:       v.Title(),
		Message:     v.Body(),
		Data:        v.Data(),
	})
	if err != nil {
		metrics.RecordDelivery(string(kind), "failed")
		log.Error("failed to persist notification", zap.Error(err))
		return fmt.Errorf("persist %s: %w", kind, err)
	}

	res, err := d.sender.Send(ctx, v.Envelope())
	if err != nil {
		var terr *push.TransportError
		if errors.As(err, &terr) {
			metrics.RecordPushError(terr.Code)
		}
		metrics.RecordDelivery(string(kind), "failed")
		log.Warn("push delivery failed",
			zap.Int64("notification_id", notif.ID),
			zap.Error(err),
		)
		return fmt.Errorf("send %s: %w", kind, err)
	}

	status := "delivered"
	if res.Mock {
		status = "mock"
	}
	metrics.RecordDelivery(string(kind), status)
	log.Info("notification delivered",
		zap.Int64("notification_id", notif.ID),
		zap.String("message_id", res.MessageID),
		zap.Bool("mock", res.Mock),
	)

	return nil
}

// acquireCooldown reports whether the alert may proceed. Redis errors fail
// open so a cache outage never silences alerts.
func acquireCooldown(ctx context.Context, cd Cooldown, key string, logger *zap.Logger) bool {
	if cd == nil {
		return true
	}
	ok, err := cd.Acquire(ctx, key)
	if err != nil {
		logger.Warn("alert cooldown unavailable, dispatching anyway",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// releaseOnFailure drops the cooldown when nobody was reached so the next
// occurrence is not suppressed.
func releaseOnFailure(ctx context.Context, cd Cooldown, key string, res *Result, logger *zap.Logger) {
	if !res.Success {
		releaseCooldown(ctx, cd, key, logger)
	}
}

func releaseCooldown(ctx context.Context, cd Cooldown, key string, logger *zap.Logger) {
	if cd == nil {
		return
	}
	if err := cd.Release(ctx, key); err != nil {
		logger.Warn("failed to release alert cooldown", zap.String("key", key), zap.Error(err))
	}
}
