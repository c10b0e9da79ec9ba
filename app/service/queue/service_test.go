package queue

import (
	"testing"

	"souqlive/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndReceive(t *testing.T) {
	svc, err := New(nil)
	require.NoError(t, err)

	svc.Add("t1", model.RoleUser, "hello")

	msg := <-svc.Channel()
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, model.RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Text)
}

func TestOverflowDropsInsteadOfBlocking(t *testing.T) {
	svc, err := New(nil)
	require.NoError(t, err)

	for i := 0; i < bufferSize+10; i++ {
		svc.Add("t1", model.RoleUser, "spam")
	}

	assert.Len(t, svc.Channel(), bufferSize)
}

func TestAddAfterShutdownDoesNotPanic(t *testing.T) {
	svc, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, svc.Shutdown())

	assert.NotPanics(t, func() {
		svc.Add("t1", model.RoleUser, "late message")
	})
}
