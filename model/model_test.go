package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_MockModel(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddResponse("hello", "hi there teacher")

	for _, stream := range []bool{false, true} {
		out, err := Complete(context.Background(), m, Request{
			Messages: []Message{{Role: "user", Text: "hello"}},
			Stream:   stream,
		})
		require.NoError(t, err)
		assert.Equal(t, "hi there teacher", out)
	}

	out, err := Complete(context.Background(), m, Request{Messages: []Message{{Role: "user", Text: "other"}}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", out)
	assert.Equal(t, "mock", m.Info().Provider)
}

func TestComplete_Errors(t *testing.T) {
	m := NewMockModel("mock-1")
	_, err := Complete(context.Background(), m, Request{})
	require.Error(t, err)

	boom := errors.New("boom")
	m.FailWith(boom)
	_, err = Complete(context.Background(), m, Request{Messages: []Message{{Role: "user", Text: "x"}}})
	require.ErrorIs(t, err, boom)
}
