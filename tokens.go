package bulwark

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenRepository stores the acknowledged token pair of every
// (account, device) and the tombstones of retired pairs.
//
// Get returns nil, nil when no record exists. Supersede clears the stored
// refresh token only when it still equals refreshToken and records the
// tombstone in the same unit of work, it fails with ErrNotAcknowledged when
// the stored value no longer matches. Retire is idempotent.
type TokenRepository interface {
	Acknowledge(ctx context.Context, accountID uuid.UUID, deviceID, accessToken, refreshToken string) error
	Get(ctx context.Context, accountID uuid.UUID, deviceID string) (*AcknowledgedToken, error)
	Delete(ctx context.Context, accountID uuid.UUID, deviceID string) error
	Supersede(ctx context.Context, accountID uuid.UUID, deviceID, refreshToken string, tombstone *RetiredToken) error
	Retire(ctx context.Context, tombstone *RetiredToken) error
	IsRetired(ctx context.Context, pairID string) (bool, error)
	PurgeRetired(ctx context.Context, now time.Time) (int, error)
}
