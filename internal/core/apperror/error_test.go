package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode_WalksNestedAppErrors(t *testing.T) {
	inner := NewConstruction("column missing").WithDetail("column", "status")
	outer := NewCapture(fmt.Errorf("entry orders: %w", inner))

	assert.True(t, HasCode(outer, CodeCapture))
	assert.True(t, HasCode(outer, CodeConstruction))
	assert.False(t, HasCode(outer, CodeResolve))
	assert.False(t, HasCode(errors.New("plain"), CodeCapture))
	assert.False(t, HasCode(nil, CodeCapture))
}

func TestAppError_Error(t *testing.T) {
	err := NewDatabase("insert orders", errors.New("boom"))
	assert.Equal(t, "DATABASE_ERROR: insert orders (caused by: boom)", err.Error())

	misuse := NewUnitOfWork("commit", "idle")
	assert.Equal(t, "UNIT_OF_WORK_MISUSE: commit is not allowed in state idle", misuse.Error())
	assert.True(t, IsUnitOfWorkMisuse(fmt.Errorf("wrap: %w", misuse)))
	assert.Equal(t, "commit", misuse.Details["operation"])
}
