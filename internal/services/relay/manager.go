package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	"github.com/iwtcode/hipotService/internal/services/safety"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"

	"go.uber.org/atomic"
)

// TimerBank - таймеры безопасности, используемые менеджером.
// Таймеры адресуются парой (имя банка, индекс реле).
type TimerBank interface {
	Arm(module string, index int, d time.Duration, onFire safety.FireFunc) uint64
	Cancel(module string, index int)
	Current(module string, index int, gen uint64) bool
	CancelAll()
}

// Manager выбирает активный банк реле и накладывает на команды таймеры безопасности.
// opMu упорядочивает команды и автоматическое размыкание: срабатывание таймера
// не может разомкнуть реле, которое уже перезамкнули с новым таймером.
type Manager struct {
	opMu        sync.Mutex
	controllers map[string]Controller
	selected    *atomic.String
	timers      TimerBank
	bus         *events.Bus
	logger      *logging.Logger
}

// NewManager создает менеджер с основным и резервным банками.
// defaultName выбирает активный банк при старте.
func NewManager(primary, backup Controller, defaultName string, timers TimerBank, bus *events.Bus, logger *logging.Logger) (*Manager, error) {
	m := &Manager{
		controllers: map[string]Controller{
			primary.Name(): primary,
			backup.Name():  backup,
		},
		selected: atomic.NewString(primary.Name()),
		timers:   timers,
		bus:      bus,
		logger:   logger.WithPrefix("Relays"),
	}
	if defaultName != "" {
		if err := m.Select(defaultName); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Select переключает активный банк. Неизвестное имя - ошибка валидации, выбор не меняется.
func (m *Manager) Select(name string) error {
	if _, ok := m.controllers[name]; !ok {
		return apperrors.NewValidationError("selected_relay", name,
			fmt.Sprintf("unknown relay module, expected %q or %q", models.RelayElectromechanical, models.RelaySolidState))
	}
	if prev := m.selected.Swap(name); prev != name {
		m.logger.Info("Relay module selected", "module", name, "previous", prev)
		m.bus.Logf(events.LevelInfo, "Relay module selected: %s", name)
	}
	return nil
}

// ActiveName возвращает имя активного банка.
func (m *Manager) ActiveName() string { return m.selected.Load() }

// Active возвращает активный банк.
func (m *Manager) Active() Controller { return m.controllers[m.selected.Load()] }

// State возвращает состояние активного банка.
func (m *Manager) State() models.RelayState { return m.Active().State() }

// SetRelays выставляет реле без таймера безопасности.
func (m *Manager) SetRelays(ctx context.Context, indices []int, state interface{}) error {
	return m.SetRelaysWithTimeout(ctx, indices, state, 0)
}

// SetRelaysWithTimeout выставляет реле активного банка. Для замыкаемых реле при timeout > 0
// взводится таймер, который по истечении размыкает реле. Размыкание снимает таймеры этого банка.
func (m *Manager) SetRelaysWithTimeout(ctx context.Context, indices []int, state interface{}, timeout time.Duration) error {
	if err := ValidateIndices(indices); err != nil {
		return err
	}
	closed, err := ParseState(state)
	if err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.apply(ctx, m.Active(), indices, closed, timeout)
}

// CloseRelays замыкает реле активного банка с таймером безопасности и возвращает банк,
// на котором они замкнуты. Банк возвращается и при ошибке: реле могли замкнуться частично.
func (m *Manager) CloseRelays(ctx context.Context, indices []int, timeout time.Duration) (Controller, error) {
	if err := ValidateIndices(indices); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	ctrl := m.Active()
	return ctrl, m.apply(ctx, ctrl, indices, true, timeout)
}

// OpenRelaysOn размыкает реле указанного банка независимо от текущего выбора.
func (m *Manager) OpenRelaysOn(ctx context.Context, ctrl Controller, indices []int) error {
	if err := ValidateIndices(indices); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.apply(ctx, ctrl, indices, false, 0)
}

// apply вызывается под opMu.
func (m *Manager) apply(ctx context.Context, ctrl Controller, indices []int, closed bool, timeout time.Duration) error {
	if !closed {
		for _, i := range indices {
			m.timers.Cancel(ctrl.Name(), i)
		}
	}

	if err := ctrl.SetRelays(ctx, indices, closed); err != nil {
		m.logger.Error("Failed to set relays", "module", ctrl.Name(), "relays", indices, "closed", closed, "error", err)
		return err
	}
	m.logger.Debug("Relays set", "module", ctrl.Name(), "relays", indices, "closed", closed)
	m.publishState(ctrl)

	if closed && timeout > 0 {
		for _, i := range indices {
			m.arm(ctrl, i, timeout)
		}
	}
	return nil
}

// arm взводит таймер, который размыкает реле на том банке, который его замкнул.
// Вызывается под opMu, поэтому колбэк видит записанное поколение.
func (m *Manager) arm(ctrl Controller, index int, timeout time.Duration) {
	var gen uint64
	gen = m.timers.Arm(ctrl.Name(), index, timeout, func(int) error {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		if !m.timers.Current(ctrl.Name(), index, gen) {
			m.logger.Debug("Safety timer superseded", "module", ctrl.Name(), "relay", index)
			return nil
		}

		m.bus.Logf(events.LevelWarning, "Safety timer expired, opening relay %d on %s", index, ctrl.Name())
		if err := ctrl.SetRelays(context.Background(), []int{index}, false); err != nil {
			return err
		}
		m.timers.Cancel(ctrl.Name(), index)
		m.publishState(ctrl)
		return nil
	})
}

// OpenRelays размыкает реле активного банка.
func (m *Manager) OpenRelays(ctx context.Context, indices []int) error {
	return m.SetRelays(ctx, indices, false)
}

// AllOn замыкает все реле активного банка.
func (m *Manager) AllOn(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	ctrl := m.Active()
	if err := ctrl.AllOn(ctx); err != nil {
		return err
	}
	m.publishState(ctrl)
	return nil
}

// AllOff снимает таймеры активного банка и размыкает все его реле.
// Таймеры другого банка продолжают работать.
func (m *Manager) AllOff(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	ctrl := m.Active()
	for _, i := range allIndices() {
		m.timers.Cancel(ctrl.Name(), i)
	}
	if err := ctrl.AllOff(ctx); err != nil {
		return err
	}
	m.publishState(ctrl)
	return nil
}

// Shutdown размыкает реле обоих банков; ошибки объединяются.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.timers.CancelAll()
	var errs []error
	for name, ctrl := range m.controllers {
		if err := ctrl.AllOff(ctx); err != nil {
			m.logger.Warn("Failed to open relays on shutdown", "module", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) publishState(ctrl Controller) {
	m.bus.Publish(events.RelayStateChanged{Controller: ctrl.Name(), State: ctrl.State()})
}
