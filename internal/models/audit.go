package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AuditAction constants represent ledger actions recorded in the audit trail.
const (
	AuditActionOfferCreate     = "OFFER_CREATE"
	AuditActionOfferClaim      = "OFFER_CLAIM"
	AuditActionOfferInspect    = "OFFER_INSPECT"
	AuditActionOfferTransition = "OFFER_TRANSITION"
	AuditActionHandover        = "RESERVATION_HANDOVER"
	AuditActionForceRelease    = "RESERVATION_FORCE_RELEASE"
	AuditActionHoldExpired     = "RESERVATION_EXPIRED"
	AuditActionTargetOverride  = "NEED_TARGET_OVERRIDE"
	AuditActionTargetCleared   = "NEED_TARGET_CLEARED"
)

// AuditResourceOffer is the resource name for offer audit rows.
const AuditResourceOffer = "offer"

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  Snapshot  `db:"old_values" json:"oldValues,omitempty"`
	NewValues  Snapshot  `db:"new_values" json:"newValues,omitempty"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Snapshot is a JSON document kept in a jsonb column. It scans NULL as empty
// and renders inline rather than base64.
type Snapshot []byte

// Scan implements sql.Scanner.
func (s *Snapshot) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append(Snapshot(nil), v...)
	case string:
		*s = Snapshot(v)
	default:
		return fmt.Errorf("snapshot: cannot scan %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (s Snapshot) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return []byte(s), nil
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	*s = append(Snapshot(nil), data...)
	return nil
}
