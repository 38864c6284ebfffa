package serial

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
)

// Источники серийного номера.
const (
	SourceOperator = "operator"
	SourceHardware = "hardware"
)

// Prompt ожидает серийный номер от оператора (через API).
type Prompt struct {
	mu      sync.Mutex
	pending chan string
	timeout time.Duration
	bus     *events.Bus
	logger  *logging.Logger
}

func NewPrompt(timeout time.Duration, bus *events.Bus, logger *logging.Logger) *Prompt {
	return &Prompt{
		timeout: timeout,
		bus:     bus,
		logger:  logger.WithPrefix("SerialPrompt"),
	}
}

// Acquire блокируется до Submit, Cancel, истечения таймаута или отмены ctx.
func (p *Prompt) Acquire(ctx context.Context) (string, error) {
	ch := make(chan string, 1)
	p.mu.Lock()
	p.pending = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.pending == ch {
			p.pending = nil
		}
		p.mu.Unlock()
	}()

	p.logger.Info("Waiting for serial number")
	p.bus.Logf(events.LevelInfo, "Waiting for serial number...")

	var timeout <-chan time.Time
	if p.timeout > 0 {
		t := time.NewTimer(p.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case serial := <-ch:
		if serial == "" {
			return "", apperrors.NewSequenceError(apperrors.ErrSerialNotProvided, "serial number entry cancelled")
		}
		return serial, nil
	case <-timeout:
		return "", apperrors.NewSequenceError(apperrors.ErrSerialNotProvided,
			fmt.Sprintf("no serial number within %s", p.timeout))
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Waiting сообщает, ожидается ли ввод.
func (p *Prompt) Waiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Submit передает введенный номер ожидающему Acquire.
func (p *Prompt) Submit(serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return apperrors.NewValidationError("serial_number", serial, "serial number must not be empty")
	}
	return p.deliver(serial)
}

// Cancel отменяет ввод; Acquire вернет ошибку "номер не введен".
func (p *Prompt) Cancel() error {
	return p.deliver("")
}

func (p *Prompt) deliver(serial string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return apperrors.ErrSerialNotRequested
	}
	select {
	case p.pending <- serial:
		p.pending = nil
		return nil
	default:
		return apperrors.ErrSerialNotRequested
	}
}

// Reader - устройство, сообщающее серийный номер изделия.
type Reader interface {
	GetSerialNumber(ctx context.Context) (string, error)
}

// Device читает серийный номер с контроллера командой get_serial_number.
type Device struct {
	reader  Reader
	timeout time.Duration
	logger  *logging.Logger
}

func NewDevice(reader Reader, timeout time.Duration, logger *logging.Logger) *Device {
	return &Device{reader: reader, timeout: timeout, logger: logger.WithPrefix("SerialDevice")}
}

func (d *Device) Acquire(ctx context.Context) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	serial, err := d.reader.GetSerialNumber(ctx)
	if err != nil {
		d.logger.Error("Failed to read serial number", "error", err)
		return "", apperrors.NewSequenceError(apperrors.ErrSerialNotProvided, err.Error())
	}
	return serial, nil
}
