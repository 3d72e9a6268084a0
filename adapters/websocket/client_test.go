package websocket

import (
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminanexus/chavruta/usecase"
)

// newIdleClient builds a client that never runs its pumps. SendMessage and
// Close only touch the send channel and the closed flag, so no connection
// is needed to exercise them.
func newIdleClient() *Client {
	return NewClient(nil, usecase.NewSession(usecase.SessionConfig{ID: "ws-test"}))
}

func TestSendMessageAfterCloseIsRejected(t *testing.T) {
	client := newIdleClient()
	require.NoError(t, client.SendMessage([]byte("before")))

	client.Close()
	assert.True(t, client.IsClosed())

	err := client.SendMessage([]byte("after"))
	assert.ErrorIs(t, err, websocket.ErrCloseSent)
}

func TestCloseIsIdempotent(t *testing.T) {
	client := newIdleClient()
	client.Close()
	client.Close()
	assert.True(t, client.IsClosed())

	select {
	case <-client.Context().Done():
	default:
		t.Fatal("context should be cancelled after close")
	}
}

func TestConcurrentSendAndCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		client := newIdleClient()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				client.SendMessage([]byte("event"))
			}
		}()
		go func() {
			defer wg.Done()
			client.Close()
		}()
		wg.Wait()

		assert.ErrorIs(t, client.SendMessage([]byte("late")), websocket.ErrCloseSent)
	}
}
