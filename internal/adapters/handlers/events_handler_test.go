package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iwtcode/hipotService/internal/events"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T) (*websocket.Conn, *events.Bus) {
	t.Helper()
	router, bus := newRouter(&stubUsecases{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, MsgTypeConnected, hello.Type)
	return conn, bus
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestEventStreamForwardsCoreEvents(t *testing.T) {
	conn, bus := dialEvents(t)
	require.Eventually(t, func() bool { return bus.Subscribers(events.TopicProgressUpdate) == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(events.ProgressUpdate{Position: 3})

	msg := readUntil(t, conn, string(events.TopicProgressUpdate))
	var payload events.ProgressUpdate
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, 3, payload.Position)
}

func TestEventStreamPublishesOperatorCommands(t *testing.T) {
	conn, bus := dialEvents(t)
	got := make(chan events.SetRelays, 1)
	events.On(bus, func(ev events.SetRelays) { got <- ev })

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    string(events.TopicSetRelays),
		Payload: json.RawMessage(`{"relays":[2,3],"state":"closed","timeout_ms":250}`),
	}))

	select {
	case ev := <-got:
		require.Equal(t, []int{2, 3}, ev.Relays)
		require.Equal(t, "closed", ev.State)
		require.Equal(t, 250*time.Millisecond, ev.Timeout)
	case <-time.After(2 * time.Second):
		t.Fatal("set_relays event was not published")
	}
}

func TestEventStreamPingAndErrors(t *testing.T) {
	conn, _ := dialEvents(t)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	pong := readUntil(t, conn, MsgTypePong)
	require.Equal(t, "p1", pong.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "self_destruct", ID: "x"}))
	reply := readUntil(t, conn, MsgTypeError)
	require.Equal(t, "x", reply.ID)
	require.Contains(t, string(reply.Payload), "unknown message type")

	require.NoError(t, conn.WriteJSON(WSMessage{Type: string(events.TopicSetHipotVoltage)}))
	reply = readUntil(t, conn, MsgTypeError)
	require.Contains(t, string(reply.Payload), "payload is required")
}

func TestEventStreamUnsubscribesOnClose(t *testing.T) {
	conn, bus := dialEvents(t)
	require.Eventually(t, func() bool { return bus.Subscribers(events.TopicLog) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return bus.Subscribers(events.TopicLog) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDecodeClientEvent(t *testing.T) {
	ev, err := decodeClientEvent(WSMessage{
		Type:    string(events.TopicBatchInfoConfirmed),
		Payload: json.RawMessage(`{"work_order_number":"WO","lot_hardener_number":"LH","lot_molding_compound_number":"LM"}`),
	})
	require.NoError(t, err)
	require.True(t, ev.(events.BatchInfoConfirmed).BatchInfo.Complete())

	ev, err = decodeClientEvent(WSMessage{Type: string(events.TopicVerifyConnection)})
	require.NoError(t, err)
	require.Equal(t, events.VerifyConnection{}, ev)

	_, err = decodeClientEvent(WSMessage{Type: string(events.TopicDefaultRelaySelected), Payload: json.RawMessage(`{`)})
	require.Error(t, err)
}
