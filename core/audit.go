package core

import "time"

// AuditStatus is the outcome recorded for a security-relevant transition.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailure AuditStatus = "FAILURE"
)

// AuditRecord is append-only. Writing one never blocks the operation that
// triggered it, including when the write itself fails.
type AuditRecord struct {
	Action       string
	IdentityID   string
	ResourceType string
	ResourceID   string
	Status       AuditStatus
	Metadata     map[string]string
	CreatedAt    time.Time
}
