package driving

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// MigrationService moves vector data between the local store and the remote index.
type MigrationService interface {
	// Start runs a migration under the advisory lock.
	Start(ctx context.Context, opts domain.MigrationOptions) (*domain.MigrationReport, error)

	// ClearDatabase removes vector data from target and returns per-table counts.
	ClearDatabase(ctx context.Context, target domain.ClearTarget) (map[string]int, error)

	// LastReport returns the stored report of the most recent run.
	LastReport(ctx context.Context) (*domain.MigrationReport, error)

	// Status returns the current lock, or nil when idle.
	Status(ctx context.Context) (*domain.MigrationLock, error)
}
