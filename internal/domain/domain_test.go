package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCall(t *testing.T) {
	t.Parallel()

	call, err := NewCall("call-1", "")
	require.NoError(t, err)
	assert.Equal(t, Call{ID: "call-1"}, call)

	_, err = NewCall("", "example.com")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewCall(strings.Repeat("x", MaxCallIDLen+1), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRoomURLName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", RoomURL("https://acme.daily.co/abc").Name())
	assert.Equal(t, "abc", RoomURL("abc").Name())
}

func TestNotFoundKinds(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.Is(ErrRoomNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrVariableNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrRoomNotFound, ErrVariableNotFound))
}

func TestDialInParams(t *testing.T) {
	t.Parallel()

	p := DialInParams("dialin-user", 0)
	assert.Equal(t, RoomParams{SIPDisplayName: "dialin-user", SIPMode: "dial-in", NumEndpoints: 1}, p)
}
