package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	parse := &ParseError{Venue: "binance", Err: io.ErrUnexpectedEOF}
	transient := &TransientError{Op: "fetch snapshot", Err: io.EOF}

	assert.True(t, IsParseError(parse))
	assert.False(t, IsParseError(transient))
	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(parse))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("listener: %w", transient)
	assert.True(t, IsTransient(wrapped))
	assert.True(t, errors.Is(parse, io.ErrUnexpectedEOF))
}
