package recipients

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/db"
)

// MockDirectory ignores excludeUserID so the resolver's own filtering is exercised
type MockDirectory struct {
	modules map[int64]*db.ModuleDetails
	links   map[int64][]db.ModuleUserLink
	linkErr error

	excluded int64
}

func (m *MockDirectory) GetModuleWithFarmAndOwner(ctx context.Context, moduleID int64) (*db.ModuleDetails, error) {
	d, ok := m.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperr.ErrModuleNotFound, moduleID)
	}
	return d, nil
}

func (m *MockDirectory) GetActiveModuleUserLinks(ctx context.Context, moduleID, excludeUserID int64) ([]db.ModuleUserLink, error) {
	m.excluded = excludeUserID
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	return m.links[moduleID], nil
}

func strPtr(s string) *string { return &s }

func user(id int64, token string) db.User {
	u := db.User{ID: id, Name: fmt.Sprintf("user-%d", id), Role: db.RoleMonitor, Active: true}
	if token != "" {
		u.DeviceToken = strPtr(token)
	}
	return u
}

func link(moduleID int64, u db.User) db.ModuleUserLink {
	return db.ModuleUserLink{ModuleID: moduleID, UserID: u.ID, Active: true, User: u}
}

func newDirectory() *MockDirectory {
	owner := user(1, "owner-token")
	owner.Role = db.RoleOwner

	return &MockDirectory{
		modules: map[int64]*db.ModuleDetails{
			10: {
				Module: db.Module{ID: 10, Name: "Estanque", FarmID: 2, CreatedBy: 1},
				Farm:   db.Farm{ID: 2, Name: "Granja", CreatedBy: 1},
				Owner:  &owner,
			},
		},
		links: map[int64][]db.ModuleUserLink{
			10: {
				link(10, owner), // owner also holds a join row
				link(10, user(2, "monitor-token")),
				link(10, user(3, "")),
				link(10, user(4, "   ")),
				link(10, user(2, "monitor-token")),
			},
		},
	}
}

func TestResolve_OwnerNeverListedAsMonitor(t *testing.T) {
	dir := newDirectory()
	r := NewResolver(dir, zap.NewNop())

	got, err := r.Resolve(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.excluded != 1 {
		t.Errorf("expected owner id passed as exclusion, got %d", dir.excluded)
	}
	if got.Owner == nil || got.Owner.UserID != 1 {
		t.Fatalf("expected owner 1, got %+v", got.Owner)
	}
	for _, m := range got.Monitors {
		if m.UserID == 1 {
			t.Error("owner must not appear among monitors")
		}
	}
}

func TestResolve_DropsUsersWithoutToken(t *testing.T) {
	r := NewResolver(newDirectory(), zap.NewNop())

	got, err := r.Resolve(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Monitors) != 1 || got.Monitors[0].UserID != 2 {
		t.Fatalf("expected only monitor 2, got %+v", got.Monitors)
	}
	if got.Skipped != 2 {
		t.Errorf("expected 2 skipped users, got %d", got.Skipped)
	}
	if got.Count() != 2 {
		t.Errorf("expected 2 recipients, got %d", got.Count())
	}
}

func TestResolve_OwnerWithoutToken(t *testing.T) {
	dir := newDirectory()
	dir.modules[10].Owner.DeviceToken = nil
	r := NewResolver(dir, zap.NewNop())

	got, err := r.Resolve(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Owner != nil {
		t.Errorf("owner without token should be dropped, got %+v", got.Owner)
	}
	if got.Empty() {
		t.Error("monitor with token should still be resolved")
	}
}

func TestResolve_NobodyReachable(t *testing.T) {
	owner := user(5, "")
	dir := &MockDirectory{
		modules: map[int64]*db.ModuleDetails{
			7: {Module: db.Module{ID: 7, CreatedBy: 5}, Owner: &owner},
		},
		links: map[int64][]db.ModuleUserLink{7: {link(7, user(6, ""))}},
	}
	r := NewResolver(dir, zap.NewNop())

	got, err := r.Resolve(context.Background(), 7)
	if err != nil {
		t.Fatalf("missing tokens are not an error: %v", err)
	}
	if !got.Empty() || got.Skipped != 2 {
		t.Errorf("expected empty set with 2 skipped, got %+v", got)
	}
}

func TestResolve_ModuleNotFound(t *testing.T) {
	r := NewResolver(newDirectory(), zap.NewNop())

	_, err := r.Resolve(context.Background(), 99)
	if !errors.Is(err, apperr.ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestResolve_LinkError(t *testing.T) {
	dir := newDirectory()
	dir.linkErr = errors.New("connection reset")
	r := NewResolver(dir, zap.NewNop())

	if _, err := r.Resolve(context.Background(), 10); !errors.Is(err, dir.linkErr) {
		t.Fatalf("expected wrapped link error, got %v", err)
	}
}

func TestResolve_InactiveLinkIgnored(t *testing.T) {
	dir := newDirectory()
	revoked := link(10, user(8, "revoked-token"))
	revoked.Active = false
	dir.links[10] = append(dir.links[10], revoked)
	r := NewResolver(dir, zap.NewNop())

	got, err := r.Resolve(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range got.Monitors {
		if m.UserID == 8 {
			t.Error("revoked assignment should not be notified")
		}
	}
}
