package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotScan(t *testing.T) {
	var s Snapshot
	require.NoError(t, s.Scan([]byte(`{"status":"reserved"}`)))
	assert.JSONEq(t, `{"status":"reserved"}`, string(s))

	require.NoError(t, s.Scan(nil))
	assert.Nil(t, s)

	assert.Error(t, s.Scan(42))
}

func TestAuditLogRendersSnapshotsInline(t *testing.T) {
	log := AuditLog{ID: "a-1", Action: AuditActionOfferClaim, NewValues: Snapshot(`{"quantity":3}`)}

	raw, err := json.Marshal(log)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"newValues":{"quantity":3}`)
	assert.NotContains(t, string(raw), "oldValues")

	var back AuditLog
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.JSONEq(t, `{"quantity":3}`, string(back.NewValues))
}
