package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := DomainError("pi=%g outside (0,1)", 1.5)
	wrapped := Wrap(base, "barnard at pi")

	assert.Equal(t, CodeDomainError, GetCode(wrapped))
	assert.True(t, HasCode(wrapped, CodeDomainError))
	assert.Contains(t, wrapped.Error(), "pi=1.5 outside (0,1)")
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrapf(fmt.Errorf("boom"), "step %d", 3)

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.Equal(t, "step 3: boom", wrapped.Error())
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestHasCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", InfeasibleTable("a=%d", 9))

	assert.True(t, HasCode(err, CodeInfeasibleTable))
	assert.False(t, HasCode(err, CodeDomainError))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
}

func TestMalformedInputMessage(t *testing.T) {
	err := MalformedInput("transactions.dat", 12, "duplicate item %d", 7)

	assert.Equal(t, CodeMalformedInput, err.Code)
	assert.Equal(t, "transactions.dat:12: duplicate item 7", err.Error())
}
