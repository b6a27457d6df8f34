package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", RequestID: "7"}))
	require.Eventually(t, func() bool { return hub.Subscribers("7") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(events.WagerSettled{RequestID: 8, Status: events.SettlementSettled})
	hub.Broadcast(events.WagerSettled{RequestID: 7, Status: events.SettlementVoided})

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string              `json:"type"`
		Payload events.WagerSettled `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "outcome", msg.Type)
	assert.Equal(t, uint64(7), msg.Payload.RequestID)
	assert.Equal(t, events.SettlementVoided, msg.Payload.Status)

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "unsubscribe", RequestID: "7"}))
	require.Eventually(t, func() bool { return hub.Subscribers("7") == 0 }, 2*time.Second, 10*time.Millisecond)
}
