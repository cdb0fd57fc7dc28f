package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JAY4T/kaakazini/internal/logging"
	"github.com/JAY4T/kaakazini/internal/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	return hub, func() {
		cancel()
		<-done
	}
}

func recv(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case b, ok := <-c.Send:
		require.True(t, ok, "channel closed")
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return nil
}

func TestSendToUsers(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	clientUser, craftsmanUser, stranger := uuid.New(), uuid.New(), uuid.New()
	a := &Client{ID: "a", UserID: clientUser, Send: make(chan []byte, 4)}
	b := &Client{ID: "b", UserID: craftsmanUser, Send: make(chan []byte, 4)}
	c := &Client{ID: "c", UserID: stranger, Send: make(chan []byte, 4)}
	for _, cl := range []*Client{a, b, c} {
		require.True(t, hub.RegisterClient(cl))
	}
	assert.Equal(t, 1, hub.Connected(clientUser))

	hub.SendToUsers(map[string]string{"type": "job_update", "status": "Assigned"}, clientUser, craftsmanUser, clientUser, uuid.Nil)

	assert.Equal(t, "Assigned", recv(t, a)["status"])
	assert.Equal(t, "Assigned", recv(t, b)["status"])
	assert.Empty(t, a.Send)
	assert.Empty(t, c.Send)
}

func TestFullBufferDoesNotBlock(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	u := uuid.New()
	cl := &Client{ID: "slow", UserID: u, Send: make(chan []byte, 1)}
	require.True(t, hub.RegisterClient(cl))

	for i := 0; i < 5; i++ {
		hub.SendToUser(u, map[string]int{"n": i})
	}
	assert.Equal(t, float64(0), recv(t, cl)["n"])
}

func TestUnregisterClosesSend(t *testing.T) {
	hub, stop := startHub(t)

	cl := &Client{ID: "x", UserID: uuid.New(), Send: make(chan []byte, 1)}
	require.True(t, hub.RegisterClient(cl))
	hub.UnregisterClient(cl)

	_, ok := <-cl.Send
	assert.False(t, ok)

	stop()
	assert.False(t, hub.RegisterClient(&Client{ID: "late", Send: make(chan []byte)}))
	hub.UnregisterClient(cl)
}

func TestUpgradeRejectsBadRequests(t *testing.T) {
	app := fiber.New()
	app.Get("/ws/jobs", Upgrade("secret"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/jobs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	req := httptest.NewRequest("GET", "/ws/jobs?token=garbage", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	tok, err := utils.SignJWT("secret", uuid.NewString(), "client", utils.TokenAccess, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/ws/jobs?token="+tok, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
