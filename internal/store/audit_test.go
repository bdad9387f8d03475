package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEntriesFlow(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()

	require.NoError(t, s.LogCaseAction(ctx, "C1", ActionCreateCase, "ana@example.org", map[string]interface{}{"table": "notas_informativas"}))
	require.NoError(t, s.AddAuditEntry(ctx, AuditEntry{
		CaseNumber: "C1",
		Action:     ActionUpdateCase,
		Actor:      "ana@example.org",
		Details:    map[string]interface{}{"fields": []string{"provincia"}},
		Metadata:   map[string]string{"row_id": "abc"},
	}))
	require.NoError(t, s.LogCaseAction(ctx, "C2", ActionDeleteCase, "system", nil))

	entries, err := s.GetAuditEntries(ctx, "C1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionUpdateCase, entries[0].Action, "newest first")
	assert.Equal(t, "abc", entries[0].Metadata["row_id"])
	assert.Equal(t, ActionCreateCase, entries[1].Action)
	assert.Equal(t, "notas_informativas", entries[1].Details["table"])
	assert.Nil(t, entries[1].Metadata)

	limited, err := s.GetAuditEntries(ctx, "C1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.GetAuditEntries(ctx, "C9", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
