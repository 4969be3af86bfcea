// Package store persists notification records and serves them back through a
// role-scoped, paginated query. It owns the unread -> read transition.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/db"
)

const (
	MaxTitleLength = 100
	DefaultPage    = 1
	DefaultLimit   = 20
	MaxLimit       = 100
)

// StateFilter restricts listings to one state; the zero value means no filter
type StateFilter string

const (
	FilterNone   StateFilter = ""
	FilterRead   StateFilter = db.StateRead
	FilterUnread StateFilter = db.StateUnread
)

// ParseStateFilter accepts "", "all", "read" and "unread". field names the
// query parameter the value came from and is reported on validation errors.
func ParseStateFilter(field, s string) (StateFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterNone, nil
	case db.StateRead:
		return FilterRead, nil
	case db.StateUnread:
		return FilterUnread, nil
	default:
		return FilterNone, apperr.Invalid(field, "must be read or unread")
	}
}

// Repository is implemented by db.Repository and MemoryRepository
type Repository interface {
	CreateNotification(ctx context.Context, notif *db.Notification) error
	GetNotification(ctx context.Context, id int64) (*db.Notification, error)
	ListNotifications(ctx context.Context, q db.ListQuery) ([]*db.Notification, error)
	CountNotifications(ctx context.Context, scope db.Scope, state string) (int, error)
	MarkNotificationRead(ctx context.Context, id int64) (*db.Notification, error)
}

// UserDirectory resolves the caller's role and module assignments
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*db.User, error)
	GetActiveModuleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// CreateInput carries the fields of a new notification record
type CreateInput struct {
	OwnerUserID *int64
	ModuleID    *int64
	Type        string
	Title       string
	Message     string
	// Data is stored as JSON; json.RawMessage and []byte are kept verbatim
	Data any
}

// Pagination describes the page returned by ListForUser
type Pagination struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
}

// Page is one page of notifications with its pagination metadata
type Page struct {
	Items      []*db.Notification `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

// Store applies notification validation and access rules over a Repository
type Store struct {
	repo   Repository
	users  UserDirectory
	logger *zap.Logger
}

// New creates a new notification store
func New(repo Repository, users UserDirectory, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		users:  users,
		logger: logger,
	}
}

// Create validates and persists a notification. The record always starts
// unread with a store-assigned creation time.
func (s *Store) Create(ctx context.Context, in CreateInput) (*db.Notification, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	data, err := encodeData(in.Data)
	if err != nil {
		return nil, err
	}

	notif := &db.Notification{
		OwnerUserID: in.OwnerUserID,
		ModuleID:    in.ModuleID,
		Type:        strings.TrimSpace(in.Type),
		Title:       strings.TrimSpace(in.Title),
		Message:     in.Message,
		Data:        data,
	}

	if err := s.repo.CreateNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return notif, nil
}

func validateCreate(in CreateInput) error {
	title := strings.TrimSpace(in.Title)
	switch {
	case strings.TrimSpace(in.Type) == "":
		return apperr.Missing("type")
	case title == "":
		return apperr.Missing("title")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return apperr.Invalid("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	case strings.TrimSpace(in.Message) == "":
		return apperr.Missing("message")
	}
	return nil
}

func encodeData(data any) (json.RawMessage, error) {
	switch d := data.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(d) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(d) {
			return nil, apperr.Invalid("data", "is not valid JSON")
		}
		return d, nil
	case []byte:
		return encodeData(json.RawMessage(d))
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, apperr.Invalid("data", "cannot be encoded as JSON")
		}
		return b, nil
	}
}

// ListForUser returns one page of the notifications userID may see. Monitors
// additionally see alert notifications for their actively assigned modules.
func (s *Store) ListForUser(ctx context.Context, userID int64, page, limit int, filter StateFilter) (*Page, error) {
	page, limit, err := normalizePaging(page, limit)
	if err != nil {
		return nil, err
	}

	scope, err := s.ScopeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountNotifications(ctx, scope, string(filter))
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	items, err := s.repo.ListNotifications(ctx, db.ListQuery{
		Scope:  scope,
		State:  string(filter),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if items == nil {
		items = []*db.Notification{}
	}

	return &Page{
		Items: items,
		Pagination: Pagination{
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
			Page:       page,
			Limit:      limit,
		},
	}, nil
}

// UnreadCount returns how many visible notifications are still unread
func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	scope, err := s.ScopeFor(ctx, userID)
	if err != nil {
		return 0, err
	}

	n, err := s.repo.CountNotifications(ctx, scope, db.StateUnread)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// ScopeFor computes the visibility scope for a user
func (s *Store) ScopeFor(ctx context.Context, userID int64) (db.Scope, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return db.Scope{}, err
	}

	scope := db.Scope{OwnerID: user.ID}
	if user.Role != db.RoleMonitor {
		return scope, nil
	}

	moduleIDs, err := s.users.GetActiveModuleIDsForUser(ctx, user.ID)
	if err != nil {
		return db.Scope{}, fmt.Errorf("load module assignments: %w", err)
	}
	if len(moduleIDs) > 0 {
		scope.ModuleIDs = moduleIDs
		scope.AlertTypes = db.AlertTypes
	}

	return scope, nil
}

// MarkAsRead flips a notification owned by userID to read. Marking an
// already read notification returns it unchanged.
func (s *Store) MarkAsRead(ctx context.Context, notificationID, userID int64) (*db.Notification, error) {
	notif, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	if notif.OwnerUserID == nil || *notif.OwnerUserID != userID {
		s.logger.Warn("mark as read rejected",
			zap.Int64("notification_id", notificationID),
			zap.Int64("user_id", userID),
		)
		return nil, fmt.Errorf("%w: notification %d is not owned by user %d", apperr.ErrForbidden, notificationID, userID)
	}

	if notif.State == db.StateRead {
		return notif, nil
	}

	updated, err := s.repo.MarkNotificationRead(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return updated, nil
}

func normalizePaging(page, limit int) (int, int, error) {
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return 0, 0, apperr.Invalid("page", "must be >= 1")
	}
	if limit < 1 || limit > MaxLimit {
		return 0, 0, apperr.Invalid("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
	}
	return page, limit, nil
}
