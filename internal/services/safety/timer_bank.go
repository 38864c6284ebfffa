package safety

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
)

// FireFunc вызывается ровно один раз при истечении таймера реле.
type FireFunc func(index int) error

// key - реле конкретного банка. Таймеры разных банков с одним индексом независимы.
type key struct {
	module string
	index  int
}

type timer struct {
	key      key
	gen      uint64
	deadline time.Time
	onFire   FireFunc
	pos      int // позиция в куче
}

type timerHeap []*timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.pos = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.pos = -1
	*h = old[:n-1]
	return t
}

// Bank - планировщик таймеров безопасности реле на одной min-куче.
// Для каждого реле банка живет не более одного таймера; срабатывание и отмена
// взаимоисключающие: таймер снимается с учета под блокировкой до вызова onFire.
// latest хранит поколение последнего Arm по реле; срабатывание устаревшего
// поколения пропускается.
type Bank struct {
	mu     sync.Mutex
	gen    uint64
	live   map[key]*timer
	latest map[key]uint64
	queue  timerHeap
	wake   chan struct{}
	done   chan struct{}
	closed bool
	fires  sync.WaitGroup
	loopWg sync.WaitGroup
	bus    *events.Bus
	logger *logging.Logger
}

// NewBank создает банк таймеров и запускает горутину планировщика.
func NewBank(bus *events.Bus, logger *logging.Logger) *Bank {
	b := &Bank{
		live:   make(map[key]*timer),
		latest: make(map[key]uint64),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		bus:    bus,
		logger: logger.WithPrefix("SAFETY"),
	}
	b.loopWg.Add(1)
	go b.loop()
	return b
}

// Arm запускает (или перезапускает) отсчет для реле index банка module
// и возвращает поколение таймера. После Close возвращает 0.
func (b *Bank) Arm(module string, index int, d time.Duration, onFire FireFunc) uint64 {
	k := key{module: module, index: index}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	if old, ok := b.live[k]; ok {
		heap.Remove(&b.queue, old.pos)
	}
	b.gen++
	t := &timer{key: k, gen: b.gen, deadline: time.Now().Add(d), onFire: onFire}
	heap.Push(&b.queue, t)
	b.live[k] = t
	b.latest[k] = t.gen
	b.mu.Unlock()

	b.logger.Debug("Safety timer armed", "module", module, "relay", index, "timeout", d)
	b.signal()
	return t.gen
}

// Cancel останавливает таймер реле банка module, если он есть.
// Уже сработавший, но еще не выполненный таймер тоже становится устаревшим.
func (b *Bank) Cancel(module string, index int) {
	k := key{module: module, index: index}
	b.mu.Lock()
	t, ok := b.live[k]
	if ok {
		heap.Remove(&b.queue, t.pos)
		delete(b.live, k)
	}
	delete(b.latest, k)
	b.mu.Unlock()

	if ok {
		b.logger.Debug("Safety timer cancelled", "module", module, "relay", index)
		b.signal()
	}
}

// Current сообщает, что gen - последнее поколение, взведенное для реле, и оно не отменено.
func (b *Bank) Current(module string, index int, gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	latest, ok := b.latest[key{module: module, index: index}]
	return ok && latest == gen
}

// CancelAll снимает все таймеры всех банков.
func (b *Bank) CancelAll() {
	b.mu.Lock()
	n := len(b.live)
	b.live = make(map[key]*timer)
	b.latest = make(map[key]uint64)
	b.queue = nil
	b.mu.Unlock()

	if n > 0 {
		b.logger.Info("All safety timers cancelled", "count", n)
	}
	b.signal()
}

// Pending сообщает, взведен ли таймер для реле банка module.
func (b *Bank) Pending(module string, index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.live[key{module: module, index: index}]
	return ok
}

// Close отменяет таймеры, останавливает планировщик и ждет выполняющиеся onFire.
func (b *Bank) Close() {
	b.CancelAll()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.loopWg.Wait()
	b.fires.Wait()
}

func (b *Bank) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bank) loop() {
	defer b.loopWg.Done()

	for {
		b.mu.Lock()
		wait := time.Duration(-1)
		if len(b.queue) > 0 {
			next := b.queue[0]
			if until := time.Until(next.deadline); until > 0 {
				wait = until
			} else {
				heap.Pop(&b.queue)
				delete(b.live, next.key)
				b.fires.Add(1)
				b.mu.Unlock()

				go b.fire(next)
				continue
			}
		}
		b.mu.Unlock()

		if wait < 0 {
			select {
			case <-b.wake:
			case <-b.done:
				return
			}
			continue
		}

		tm := time.NewTimer(wait)
		select {
		case <-tm.C:
		case <-b.wake:
			tm.Stop()
		case <-b.done:
			tm.Stop()
			return
		}
	}
}

func (b *Bank) fire(t *timer) {
	defer b.fires.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Safety timer callback panicked", "module", t.key.module, "relay", t.key.index, "panic", r)
			b.bus.Logf(events.LevelError, "Safety timer for relay %d failed: %v", t.key.index, r)
		}
	}()

	// между извлечением из кучи и запуском горутины реле могли перевзвести или отменить
	if !b.Current(t.key.module, t.key.index, t.gen) {
		b.logger.Debug("Stale safety timer skipped", "module", t.key.module, "relay", t.key.index)
		return
	}

	b.logger.Warn("Safety timer expired", "module", t.key.module, "relay", t.key.index)
	if err := t.onFire(t.key.index); err != nil {
		b.logger.Error("Safety timer callback failed", "module", t.key.module, "relay", t.key.index, "error", err)
		b.bus.Publish(events.LogMessage{
			Message: fmt.Sprintf("Safety timer for relay %d could not open the relay: %v", t.key.index, err),
			Level:   events.LevelError,
		})
	}
}
