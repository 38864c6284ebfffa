package testutil

import (
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/events"
)

// EventRecorder записывает все события указанных тем для проверок в тестах.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

// NewEventRecorder подписывает регистратор на темы (по умолчанию - на все темы ядра).
func NewEventRecorder(bus *events.Bus, topics ...events.Topic) *EventRecorder {
	r := &EventRecorder{}
	if len(topics) == 0 {
		topics = events.CoreTopics
	}
	for _, topic := range topics {
		bus.Subscribe(topic, r.record)
	}
	return r
}

func (r *EventRecorder) record(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// All возвращает копию всех записанных событий.
func (r *EventRecorder) All() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// ByTopic возвращает события одной темы.
func (r *EventRecorder) ByTopic(topic events.Topic) []events.Event {
	var out []events.Event
	for _, ev := range r.All() {
		if ev.Topic() == topic {
			out = append(out, ev)
		}
	}
	return out
}

// Logs возвращает сообщения журнала уровня level (или все при пустом level).
func (r *EventRecorder) Logs(level events.LogLevel) []events.LogMessage {
	var out []events.LogMessage
	for _, ev := range r.ByTopic(events.TopicLog) {
		msg := ev.(events.LogMessage)
		if level == "" || msg.Level == level {
			out = append(out, msg)
		}
	}
	return out
}

// Positions возвращает последовательность позиций progress_update.
func (r *EventRecorder) Positions() []int {
	var out []int
	for _, ev := range r.ByTopic(events.TopicProgressUpdate) {
		out = append(out, ev.(events.ProgressUpdate).Position)
	}
	return out
}

// WaitFor ждет, пока число событий темы не достигнет n.
func (r *EventRecorder) WaitFor(topic events.Topic, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.ByTopic(topic)) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return len(r.ByTopic(topic)) >= n
}
