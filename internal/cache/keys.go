package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// TenantVersionKey holds the invalidation generation shared by all of a tenant's
// snapshots. Plan and settings changes bump it.
func TenantVersionKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("dashboard:version:%s", tenantID)
}

// SnapshotVersionKey holds the invalidation generation of a tenant's period snapshot.
func SnapshotVersionKey(tenantID uuid.UUID, period string) string {
	return fmt.Sprintf("dashboard:version:%s:%s", tenantID, period)
}

func SnapshotKey(tenantID uuid.UUID, period string, tenantVersion, periodVersion int64) string {
	return fmt.Sprintf("dashboard:snapshot:%s:%s:v%d.%d", tenantID, period, tenantVersion, periodVersion)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
