package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/iwtcode/hipotService/internal/domain/models"
)

// DigitalOutput - порт дискретного вывода резервного (твердотельного) банка.
// Привязка к конкретной плате ввода-вывода находится за этим интерфейсом.
type DigitalOutput interface {
	Write(lines models.RelayState) error
	Connected() bool
	Close() error
}

// LocalBank - резервный банк твердотельных реле, подключенный напрямую к ПК.
type LocalBank struct {
	mu    sync.Mutex
	out   DigitalOutput
	state models.RelayState
}

func NewLocalBank(out DigitalOutput) *LocalBank {
	return &LocalBank{out: out}
}

func (b *LocalBank) Name() string { return models.RelaySolidState }

// SetRelays записывает все 8 линий разом; при ошибке записи состояние не меняется.
func (b *LocalBank) SetRelays(ctx context.Context, indices []int, closed bool) error {
	if err := ValidateIndices(indices); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.state
	for _, i := range indices {
		next[i] = closed
	}
	return b.write(next)
}

func (b *LocalBank) AllOn(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var next models.RelayState
	for i := range next {
		next[i] = true
	}
	return b.write(next)
}

func (b *LocalBank) AllOff(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(models.RelayState{})
}

func (b *LocalBank) write(next models.RelayState) error {
	if err := b.out.Write(next); err != nil {
		return fmt.Errorf("запись в банк твердотельных реле: %w", err)
	}
	b.state = next
	return nil
}

func (b *LocalBank) State() models.RelayState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CheckDevice сообщает, доступна ли плата вывода.
func (b *LocalBank) CheckDevice() bool {
	return b.out.Connected()
}

// Close освобождает порт вывода.
func (b *LocalBank) Close() error {
	return b.out.Close()
}

// MemoryOutput - порт вывода в памяти; используется, когда плата не подключена, и в тестах.
type MemoryOutput struct {
	mu      sync.Mutex
	lines   models.RelayState
	writes  int
	fail    error
	offline bool
}

func NewMemoryOutput() *MemoryOutput {
	return &MemoryOutput{}
}

func (m *MemoryOutput) Write(lines models.RelayState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.lines = lines
	m.writes++
	return nil
}

func (m *MemoryOutput) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.offline
}

func (m *MemoryOutput) Close() error { return nil }

// Lines возвращает последнее записанное состояние линий.
func (m *MemoryOutput) Lines() models.RelayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines
}

// Writes возвращает число успешных записей.
func (m *MemoryOutput) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailWith заставляет последующие записи завершаться ошибкой (nil снимает сбой).
func (m *MemoryOutput) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// SetOffline имитирует отключение платы.
func (m *MemoryOutput) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}
