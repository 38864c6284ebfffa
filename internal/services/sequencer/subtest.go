package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	"github.com/iwtcode/hipotService/internal/services/relay"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
)

// Hipot - источник высокого напряжения и измеритель тока утечки.
type Hipot interface {
	SetHipotVoltage(ctx context.Context, voltage float64) error
	ReadCurrent(ctx context.Context) (float64, error)
}

// Relays - управление банками реле. CloseRelays возвращает банк, на котором замкнуты реле,
// чтобы разомкнуть их там же, даже если активный банк сменился.
type Relays interface {
	CloseRelays(ctx context.Context, indices []int, timeout time.Duration) (relay.Controller, error)
	OpenRelaysOn(ctx context.Context, ctrl relay.Controller, indices []int) error
	OpenRelays(ctx context.Context, indices []int) error
	AllOff(ctx context.Context) error
}

// UnitConfig - параметры одного измерения.
type UnitConfig struct {
	Runtime       time.Duration // выдержка перед чтением тока
	SafetyTimeout time.Duration
	CurrentCutOff float64 // мА, включительно
}

// Unit - один шаг измерения: напряжение, набор реле, выдержка, чтение тока.
type Unit struct {
	spec   models.SubTestSpec
	cfg    UnitConfig
	hipot  Hipot
	relays Relays
	bus    *events.Bus
	logger *logging.Logger
	bank   relay.Controller // банк, на котором замкнуты реле подтеста
}

func NewUnit(spec models.SubTestSpec, cfg UnitConfig, hipot Hipot, relays Relays, bus *events.Bus, logger *logging.Logger) *Unit {
	return &Unit{
		spec:   spec,
		cfg:    cfg,
		hipot:  hipot,
		relays: relays,
		bus:    bus,
		logger: logger,
	}
}

// Run выполняет подтест. Ошибки не возвращаются: любой сбой дает статус ERROR.
func (u *Unit) Run(ctx context.Context) models.SubTestResult {
	n := u.spec.TestNumber
	u.bus.Publish(events.SubTestStarted{TestNumber: n, Voltage: u.spec.Voltage})
	u.bus.Logf(events.LevelInfo, "Sub-test %d: setting hi-pot tester to %gV", n, u.spec.Voltage)

	current, err := u.measure(ctx)

	// реле размыкаются при любом исходе измерения
	if openErr := u.openRelays(context.WithoutCancel(ctx)); openErr != nil && err == nil {
		err = &apperrors.MeasurementError{TestNumber: n, Step: "open_relays", Err: openErr}
	}

	var status models.TestStatus
	switch {
	case err != nil:
		status = models.StatusError
		u.logger.Error("Sub-test failed with error", "test", n, "error", err)
		u.bus.Logf(events.LevelError, "Error in sub-test %d: %v", n, err)
	case u.withinLimit(*current):
		status = models.StatusSuccess
		u.bus.Logf(events.LevelInfo, "Sub-test %d passed: %.2f mA", n, *current)
	default:
		status = models.StatusFailure
		u.bus.Logf(events.LevelWarning, "Sub-test %d failed: %.2f mA exceeds %.2f mA", n, *current, u.cfg.CurrentCutOff)
	}

	result := models.SubTestResult{
		TestNumber: n,
		Voltage:    u.spec.Voltage,
		Current:    current,
		Status:     status,
	}
	u.bus.Publish(events.SubTestConcluded{TestNumber: n, Status: status, Current: current})
	return result
}

// openRelays размыкает реле на банке, который их замкнул; если замыкания не было - на активном.
func (u *Unit) openRelays(ctx context.Context) error {
	if u.bank != nil {
		return u.relays.OpenRelaysOn(ctx, u.bank, u.spec.Relays)
	}
	return u.relays.OpenRelays(ctx, u.spec.Relays)
}

func (u *Unit) measure(ctx context.Context) (*float64, error) {
	n := u.spec.TestNumber
	if err := u.hipot.SetHipotVoltage(ctx, u.spec.Voltage); err != nil {
		return nil, &apperrors.MeasurementError{TestNumber: n, Step: "set_voltage", Err: err}
	}
	bank, err := u.relays.CloseRelays(ctx, u.spec.Relays, u.cfg.SafetyTimeout)
	u.bank = bank
	if err != nil {
		return nil, &apperrors.MeasurementError{TestNumber: n, Step: "close_relays", Err: err}
	}

	dwell := time.NewTimer(u.cfg.Runtime)
	defer dwell.Stop()
	select {
	case <-dwell.C:
	case <-ctx.Done():
		return nil, &apperrors.MeasurementError{TestNumber: n, Step: "dwell", Err: ctx.Err()}
	}

	current, err := u.hipot.ReadCurrent(ctx)
	if err != nil {
		return nil, &apperrors.MeasurementError{TestNumber: n, Step: "read_current", Err: err}
	}
	u.logger.Debug("Current measured", "test", n, "current_mA", current)
	u.bus.Logf(events.LevelInfo, "Measured current: %.2f mA", current)
	return &current, nil
}

// withinLimit: 0 <= I <= cutoff, обе границы включительно; NaN не проходит.
func (u *Unit) withinLimit(current float64) bool {
	return current >= 0 && current <= u.cfg.CurrentCutOff
}

func (u *Unit) String() string {
	return fmt.Sprintf("sub-test %d (%gV, relays %v)", u.spec.TestNumber, u.spec.Voltage, u.spec.Relays)
}
