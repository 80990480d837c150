package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/portalis-labs/keygate/core"
)

// Append writes one audit record. Callers treat failures as log-only.
func (s *Store) Append(ctx context.Context, record core.AuditRecord) error {
	metadata := "{}"
	if len(record.Metadata) > 0 {
		encoded, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(encoded)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, identity_id, resource_type, resource_id, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Action, record.IdentityID, record.ResourceType, record.ResourceID,
		string(record.Status), metadata, toMillis(createdAt)); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
