package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

const notificationColumns = `
	id, owner_user_id, module_id, type, title, message, data,
	state, created_at, read_at
`

// ListQuery selects one page of notifications visible under Scope.
// An empty State means no state filter (unread first ordering).
type ListQuery struct {
	Scope  Scope
	State  string
	Limit  int
	Offset int
}

// Repository handles database operations for notifications
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateNotification inserts a notification. State and created_at are always
// stamped by the database, whatever the caller put in notif.
func (r *Repository) CreateNotification(ctx context.Context, notif *Notification) error {
	query := `
		INSERT INTO notifications (
			owner_user_id, module_id, type, title, message, data, state
		) VALUES (
			$1, $2, $3, $4, $5, $6, 'unread'
		)
		RETURNING id, state, created_at
	`

	data := notif.Data
	if len(data) == 0 {
		data = []byte(`{}`)
	}

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		notif.OwnerUserID,
		notif.ModuleID,
		notif.Type,
		notif.Title,
		notif.Message,
		data,
	).Scan(&notif.ID, &notif.State, &notif.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("type", notif.Type),
		)
		return fmt.Errorf("insert notification: %w", err)
	}
	notif.Data = data
	notif.ReadAt = nil

	r.logger.Debug("notification created",
		zap.Int64("notification_id", notif.ID),
		zap.String("type", notif.Type),
	)

	return nil
}

// GetNotification retrieves a notification by ID
func (r *Repository) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	notif, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrNotificationNotFound, id)
	}
	if err != nil {
		r.logger.Error("failed to get notification",
			zap.Error(err),
			zap.Int64("notification_id", id),
		)
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return notif, nil
}

// ListNotifications returns one page of notifications visible under q.Scope
func (r *Repository) ListNotifications(ctx context.Context, q ListQuery) ([]*Notification, error) {
	where, args := BuildScopeQuery(q.Scope, q.State)

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + where +
		` ORDER BY ` + OrderClause(q.State) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// CountNotifications counts notifications visible under scope with the given state filter
func (r *Repository) CountNotifications(ctx context.Context, scope Scope, state string) (int, error) {
	where, args := BuildScopeQuery(scope, state)

	var total int
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, nil
}

// MarkNotificationRead flips an unread notification to read. Rows already read
// are left untouched, so repeated calls are harmless.
func (r *Repository) MarkNotificationRead(ctx context.Context, id int64) (*Notification, error) {
	query := `
		UPDATE notifications
		SET state = 'read', read_at = NOW()
		WHERE id = $1 AND state = 'unread'
	`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		r.logger.Error("failed to mark notification read",
			zap.Error(err),
			zap.Int64("notification_id", id),
		)
		return nil, fmt.Errorf("update notification state: %w", err)
	}

	return r.GetNotification(ctx, id)
}

// BuildScopeQuery renders the WHERE clause for a scope and optional state filter.
// Placeholders start at $1; the returned args match them in order.
func BuildScopeQuery(scope Scope, state string) (string, []any) {
	var b strings.Builder
	args := []any{scope.OwnerID}

	if len(scope.ModuleIDs) == 0 {
		b.WriteString(`owner_user_id = $1`)
	} else {
		args = append(args, scope.AlertTypes, scope.ModuleIDs)
		// module_id is authoritative; data->>'moduleId' only covers rows written
		// before the column existed.
		b.WriteString(`(owner_user_id = $1 OR (type = ANY($2) AND (module_id = ANY($3) OR (module_id IS NULL AND ` +
			`CASE WHEN data->>'moduleId' ~ '^[0-9]+$' THEN (data->>'moduleId')::bigint END = ANY($3)))))`)
	}

	if state != "" {
		args = append(args, state)
		fmt.Fprintf(&b, ` AND state = $%d`, len(args))
	}

	return b.String(), args
}

// OrderClause returns the ORDER BY body. Without a state filter unread rows
// come first so actionable items surface.
func OrderClause(state string) string {
	if state == "" {
		return `(state = 'unread') DESC, created_at DESC, id DESC`
	}
	return `created_at DESC, id DESC`
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var notif Notification
	err := row.Scan(
		&notif.ID,
		&notif.OwnerUserID,
		&notif.ModuleID,
		&notif.Type,
		&notif.Title,
		&notif.Message,
		&notif.Data,
		&notif.State,
		&notif.CreatedAt,
		&notif.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &notif, nil
}
