package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_ErrorIncludesCauseWhenWrapped(t *testing.T) {
	cause := errors.New("boom")
	s := Wrap(Internal, cause, "loading %s", "AAPL")
	assert.Contains(t, s.Error(), "boom")
	assert.Contains(t, s.Error(), "loading AAPL")
	assert.ErrorIs(t, s, cause)
}

func TestStatus_ErrorOmitsCauseWhenNil(t *testing.T) {
	s := NewStatus(NotFound, "order %s not found", "o1")
	assert.Equal(t, "not_found: order o1 not found", s.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, NotFound, CodeOf(NewStatus(NotFound, "x")))
	assert.Equal(t, Internal, CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestIs(t *testing.T) {
	err := NewStatus(InvalidArgument, "bad")
	assert.True(t, Is(err, InvalidArgument))
	assert.False(t, Is(err, NotFound))
	assert.False(t, Is(errors.New("plain"), InvalidArgument))
}
