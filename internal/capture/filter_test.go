package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit"
)

func TestCELFilter(t *testing.T) {
	f, err := NewCELFilter(`table != "sessions" && action != "DELETE"`)
	require.NoError(t, err)
	assert.Equal(t, `table != "sessions" && action != "DELETE"`, f.String())

	tests := []struct {
		table  string
		action audit.Action
		want   bool
	}{
		{"orders", audit.ActionInsert, true},
		{"orders", audit.ActionDelete, false},
		{"sessions", audit.ActionUpdate, false},
	}
	for _, tt := range tests {
		t.Run(tt.table+"/"+string(tt.action), func(t *testing.T) {
			got, err := f.Match(context.Background(), tt.table, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCELFilter_Invalid(t *testing.T) {
	_, err := NewCELFilter(`table ==`)
	assert.Error(t, err)

	_, err = NewCELFilter(`table`)
	assert.Error(t, err, "non-bool expressions are rejected")

	_, err = NewCELFilter(`unknown == "x"`)
	assert.Error(t, err)
}
