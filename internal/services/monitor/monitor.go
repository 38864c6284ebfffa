package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
)

// Checker - проверка связи с контроллером.
type Checker interface {
	CheckConnection(ctx context.Context) bool
	LinkState() string
}

type activePoll struct {
	ticker *time.Ticker
	done   chan struct{}
}

// Monitor периодически проверяет связь с контроллером и публикует connection_status при изменении.
type Monitor struct {
	checker Checker
	busy    func() bool
	bus     *events.Bus
	logger  *logging.Logger

	mu   sync.Mutex
	poll *activePoll
	wg   sync.WaitGroup
	last *bool
}

// NewMonitor создает монитор. busy сообщает, что идет прогон; в это время тики пропускаются.
func NewMonitor(checker Checker, busy func() bool, bus *events.Bus, logger *logging.Logger) *Monitor {
	if busy == nil {
		busy = func() bool { return false }
	}
	return &Monitor{
		checker: checker,
		busy:    busy,
		bus:     bus,
		logger:  logger.WithPrefix("MONITOR"),
	}
}

// CheckNow проверяет связь и всегда публикует результат.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	ok := m.checker.CheckConnection(ctx)
	m.mu.Lock()
	m.last = &ok
	m.mu.Unlock()
	m.publish(ok)
	return ok
}

func (m *Monitor) publish(ok bool) {
	m.bus.Publish(events.ConnectionStatus{Connected: ok, LinkState: m.checker.LinkState()})
	if ok {
		m.bus.Logf(events.LevelInfo, "Connection to hardware controller is OK.")
	} else {
		m.bus.Logf(events.LevelError, "Hardware controller is not reachable.")
	}
}

// IsActive сообщает, запущен ли фоновый опрос.
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poll != nil
}

// Start запускает фоновый опрос с заданным интервалом.
func (m *Monitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("интервал опроса должен быть положительным: %s", interval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poll != nil {
		return fmt.Errorf("опрос связи уже запущен")
	}

	poll := &activePoll{ticker: time.NewTicker(interval), done: make(chan struct{})}
	m.poll = poll
	m.wg.Add(1)
	go m.run(poll, interval)
	return nil
}

func (m *Monitor) run(poll *activePoll, interval time.Duration) {
	defer m.wg.Done()
	m.logger.Info("Starting connection polling", "interval", interval)
	defer m.logger.Info("Connection polling stopped")

	for {
		select {
		case <-poll.done:
			return
		case <-poll.ticker.C:
			if m.busy() {
				m.logger.Debug("Test sequence is running, skipping connection check")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			ok := m.checker.CheckConnection(ctx)
			cancel()

			m.mu.Lock()
			changed := m.last == nil || *m.last != ok
			m.last = &ok
			m.mu.Unlock()

			if changed {
				m.logger.Info("Connection status changed", "connected", ok)
				m.publish(ok)
			}
		}
	}
}

// Stop останавливает фоновый опрос и ждет завершения горутины.
func (m *Monitor) Stop() {
	m.mu.Lock()
	poll := m.poll
	m.poll = nil
	m.mu.Unlock()
	if poll == nil {
		return
	}
	poll.ticker.Stop()
	close(poll.done)
	m.wg.Wait()
}
