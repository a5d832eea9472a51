package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit"
)

func sampleHistory() []audit.Record {
	col, oldV, newV, user := "status", "A", "B", "alice"
	return []audit.Record{{
		ID:          3,
		RefID:       "42",
		RefTable:    "orders",
		Action:      audit.ActionUpdate,
		ColumnName:  &col,
		OldValue:    &oldV,
		NewValue:    &newV,
		CreatedAt:   time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		CreatedUser: &user,
	}}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHistory(&buf, sampleHistory()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Equal(t, []string{"3", "2024-02-03T04:05:06Z", "UPDATE", "alice", "status", "A", "B"}, strings.Fields(lines[1]))
}

func TestWriteHistoryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHistoryJSON(&buf, sampleHistory()))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "UPDATE", out[0]["actionType"])
	assert.Equal(t, "status", out[0]["columnName"])
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["history"])
}
