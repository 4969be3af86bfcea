// Package recipients computes who is told about an alert on a module.
package recipients

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/db"
)

// Directory is the slice of db.Directory the resolver reads
type Directory interface {
	GetModuleWithFarmAndOwner(ctx context.Context, moduleID int64) (*db.ModuleDetails, error)
	GetActiveModuleUserLinks(ctx context.Context, moduleID, excludeUserID int64) ([]db.ModuleUserLink, error)
}

// Recipient is a user with a usable device token
type Recipient struct {
	UserID int64
	Name   string
	Token  string
}

// Recipients is the fan-out set for one module. Owner is nil when the owner
// has no device token. Skipped counts users dropped for lack of a token.
type Recipients struct {
	Module   *db.ModuleDetails
	Owner    *Recipient
	Monitors []Recipient
	Skipped  int
}

// Count returns how many recipients will be attempted
func (r *Recipients) Count() int {
	n := len(r.Monitors)
	if r.Owner != nil {
		n++
	}
	return n
}

// Empty reports whether nobody can be notified
func (r *Recipients) Empty() bool {
	return r.Count() == 0
}

type Resolver struct {
	dir    Directory
	logger *zap.Logger
}

func NewResolver(dir Directory, logger *zap.Logger) *Resolver {
	return &Resolver{
		dir:    dir,
		logger: logger,
	}
}

// Resolve loads the module and returns its owner and active monitors.
// A missing module surfaces the directory's ErrModuleNotFound.
func (r *Resolver) Resolve(ctx context.Context, moduleID int64) (*Recipients, error) {
	details, err := r.dir.GetModuleWithFarmAndOwner(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	return r.ForModule(ctx, details)
}

// ForModule resolves recipients for an already loaded module
func (r *Resolver) ForModule(ctx context.Context, details *db.ModuleDetails) (*Recipients, error) {
	var ownerID int64
	if details.Owner != nil {
		ownerID = details.Owner.ID
	}

	links, err := r.dir.GetActiveModuleUserLinks(ctx, details.Module.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load monitors for module %d: %w", details.Module.ID, err)
	}

	out := &Recipients{Module: details}

	if details.Owner != nil {
		if token := strings.TrimSpace(details.Owner.Token()); token != "" {
			out.Owner = &Recipient{UserID: details.Owner.ID, Name: details.Owner.Name, Token: token}
		} else {
			out.Skipped++
		}
	}

	seen := make(map[int64]bool, len(links))
	for _, link := range links {
		u := link.User
		// the directory already excludes the owner; enforce it here as well
		if u.ID == ownerID && details.Owner != nil {
			continue
		}
		if seen[u.ID] || !link.Active || !u.Active {
			continue
		}
		seen[u.ID] = true

		token := strings.TrimSpace(u.Token())
		if token == "" {
			out.Skipped++
			continue
		}
		out.Monitors = append(out.Monitors, Recipient{UserID: u.ID, Name: u.Name, Token: token})
	}

	r.logger.Debug("recipients resolved",
		zap.Int64("module_id", details.Module.ID),
		zap.Bool("owner", out.Owner != nil),
		zap.Int("monitors", len(out.Monitors)),
		zap.Int("skipped", out.Skipped),
	)

	return out, nil
}
