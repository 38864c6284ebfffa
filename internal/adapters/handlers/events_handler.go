package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iwtcode/hipotService/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Служебные типы сообщений WebSocket. Остальные типы совпадают с темами шины.
const (
	MsgTypeConnected = "connected"
	MsgTypePing      = "ping"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	outboundBuffer = 256
	writeWait      = 5 * time.Second
)

// WSMessage - конверт сообщения WebSocket.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// wsSetRelays - команда реле от клиента; таймаут передается в миллисекундах.
type wsSetRelays struct {
	Relays    []int       `json:"relays"`
	State     interface{} `json:"state"`
	TimeoutMs int         `json:"timeout_ms"`
}

func newMessage(msgType string, payload interface{}) (WSMessage, error) {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.Payload = raw
	return msg, nil
}

// decodeClientEvent превращает сообщение клиента в событие шины UI -> core.
func decodeClientEvent(msg WSMessage) (events.Event, error) {
	unmarshal := func(v interface{}) error {
		if len(msg.Payload) == 0 {
			return fmt.Errorf("payload is required for %s", msg.Type)
		}
		return json.Unmarshal(msg.Payload, v)
	}

	switch events.Topic(msg.Type) {
	case events.TopicBatchInfoConfirmed:
		var ev events.BatchInfoConfirmed
		if err := unmarshal(&ev.BatchInfo); err != nil {
			return nil, err
		}
		return ev, nil
	case events.TopicBatchInfoCleared:
		return events.BatchInfoCleared{}, nil
	case events.TopicDefaultRelaySelected:
		var ev events.DefaultRelaySelected
		if err := unmarshal(&ev); err != nil {
			return nil, err
		}
		return ev, nil
	case events.TopicSetHipotVoltage:
		var ev events.SetHipotVoltage
		if err := unmarshal(&ev); err != nil {
			return nil, err
		}
		return ev, nil
	case events.TopicSetRelays:
		var req wsSetRelays
		if err := unmarshal(&req); err != nil {
			return nil, err
		}
		return events.SetRelays{
			Relays:  req.Relays,
			State:   req.State,
			Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
		}, nil
	case events.TopicVerifyConnection:
		return events.VerifyConnection{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// StreamEvents транслирует события ядра в WebSocket и принимает команды оператора.
// @Summary Поток событий
// @Description WebSocket: сервер шлет события ядра, клиент может публиковать команды UI.
// @Tags Events
// @Router /events [get]
func (h *Handler) StreamEvents(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	clientID := uuid.NewString()
	h.logger.Info("Event stream client connected", "client", clientID, "remote_addr", c.Request.RemoteAddr)

	out := make(chan WSMessage, outboundBuffer)
	done := make(chan struct{})
	send := func(msg WSMessage) {
		select {
		case out <- msg:
		default:
			h.logger.Warn("Event stream client is slow, dropping message", "client", clientID, "type", msg.Type)
		}
	}

	subs := make([]events.Subscription, 0, len(events.CoreTopics))
	for _, topic := range events.CoreTopics {
		subs = append(subs, h.bus.Subscribe(topic, func(ev events.Event) {
			msg, err := newMessage(string(ev.Topic()), ev)
			if err != nil {
				return
			}
			send(msg)
		}))
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-done:
				return
			case msg := <-out:
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteJSON(msg); err != nil {
					h.logger.Debug("Event stream write failed", "client", clientID, "error", err)
					return
				}
			}
		}
	}()

	defer func() {
		for _, s := range subs {
			h.bus.Unsubscribe(s)
		}
		close(done)
		<-writerDone
		h.logger.Info("Event stream client disconnected", "client", clientID)
	}()

	if hello, err := newMessage(MsgTypeConnected, gin.H{"client_id": clientID}); err == nil {
		send(hello)
	}

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Event stream connection error", "client", clientID, "error", err)
			}
			return
		}

		if msg.Type == MsgTypePing {
			send(WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()})
			continue
		}

		ev, err := decodeClientEvent(msg)
		if err != nil {
			if reply, mErr := newMessage(MsgTypeError, gin.H{"message": err.Error()}); mErr == nil {
				reply.ID = msg.ID
				send(reply)
			}
			continue
		}
		h.logger.Debug("Operator event received", "client", clientID, "topic", ev.Topic())
		h.bus.Publish(ev)
	}
}
