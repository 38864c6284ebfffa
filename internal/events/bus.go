package events

import (
	"fmt"
	"sync"
)

// Handler вызывается синхронно в горутине, которая публикует событие.
// Обработчик не должен блокироваться надолго: таймаута нет, и пока он работает,
// издатель (включая воркер испытаний) стоит.
type Handler func(Event)

// Subscription идентифицирует подписку для Unsubscribe.
type Subscription struct {
	topic Topic
	id    uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus - шина публикации/подписки. Каждый компонент получает экземпляр через конструктор.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic][]subscriber
}

// New создает пустую шину.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscriber)}
}

// Subscribe добавляет обработчик в конец списка темы.
func (b *Bus) Subscribe(topic Topic, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: b.nextID, handler: h})
	return Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe удаляет подписку. Повторный вызов ничего не делает.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[s.topic]
	for i, sub := range list {
		if sub.id != s.id {
			continue
		}
		updated := make([]subscriber, 0, len(list)-1)
		updated = append(updated, list[:i]...)
		updated = append(updated, list[i+1:]...)
		if len(updated) == 0 {
			delete(b.subs, s.topic)
		} else {
			b.subs[s.topic] = updated
		}
		return
	}
}

// Publish вызывает обработчики темы по порядку регистрации вне блокировки,
// поэтому обработчик может сам публиковать события.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	list := b.subs[ev.Topic()]
	snapshot := make([]subscriber, len(list))
	copy(snapshot, list)
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.invoke(sub.handler, ev)
	}
}

func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil && ev.Topic() != TopicLog {
			b.Publish(LogMessage{
				Message: fmt.Sprintf("Event handler for %s panicked: %v", ev.Topic(), r),
				Level:   LevelError,
			})
		}
	}()
	h(ev)
}

// Subscribers возвращает число обработчиков темы.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Logf публикует сообщение журнала для оператора.
func (b *Bus) Logf(level LogLevel, format string, args ...interface{}) {
	b.Publish(LogMessage{Message: fmt.Sprintf(format, args...), Level: level})
}

// On подписывает типизированный обработчик на тему события T.
func On[T Event](b *Bus, h func(T)) Subscription {
	var zero T
	return b.Subscribe(zero.Topic(), func(ev Event) {
		if typed, ok := ev.(T); ok {
			h(typed)
		}
	})
}
