package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/entities"
	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"

	"gorm.io/gorm"
)

func storageDisabled() error {
	return apperrors.NewAppError(http.StatusServiceUnavailable, "Result storage unavailable", apperrors.ErrStorageDisabled, true)
}

type Usecase struct {
	seq     interfaces.Sequencer
	relays  interfaces.RelayService
	link    interfaces.HardwareLink
	monitor interfaces.ConnectionMonitor
	prompt  interfaces.SerialPrompt // nil, если номер читается с контроллера
	repo    interfaces.TestRunRepository
	bus     *events.Bus
}

func NewUsecase(
	seq interfaces.Sequencer,
	relays interfaces.RelayService,
	link interfaces.HardwareLink,
	monitor interfaces.ConnectionMonitor,
	prompt interfaces.SerialPrompt,
	repo interfaces.TestRunRepository,
	bus *events.Bus,
) interfaces.Usecases {
	return &Usecase{
		seq:     seq,
		relays:  relays,
		link:    link,
		monitor: monitor,
		prompt:  prompt,
		repo:    repo,
		bus:     bus,
	}
}

func (u *Usecase) ConfirmBatch(info models.BatchInfo) error {
	if !info.Complete() {
		return apperrors.NewValidationError("batch_info", info, "all batch information fields are required")
	}
	u.bus.Publish(events.BatchInfoConfirmed{BatchInfo: info})
	return nil
}

func (u *Usecase) ClearBatch() {
	u.bus.Publish(events.BatchInfoCleared{})
}

// SelectDefaultRelay меняет активный банк; во время прогона запрещено,
// иначе реле подтеста окажутся на другом банке, чем их таймеры.
func (u *Usecase) SelectDefaultRelay(name string) error {
	if err := u.manualAllowed(); err != nil {
		return err
	}
	return u.relays.Select(name)
}

// manualAllowed запрещает ручное управление оборудованием во время прогона
func (u *Usecase) manualAllowed() error {
	if u.seq.Busy() {
		return apperrors.NewSequenceError(apperrors.ErrAlreadyRunning, "manual control is disabled while a test is running")
	}
	return nil
}

func (u *Usecase) SetRelays(ctx context.Context, req models.SetRelaysRequest) error {
	if req.TimeoutMs < 0 {
		return apperrors.NewValidationError("timeout_ms", req.TimeoutMs, "timeout must not be negative")
	}
	if err := u.manualAllowed(); err != nil {
		return err
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	return u.relays.SetRelaysWithTimeout(ctx, req.Relays, req.State, timeout)
}

func (u *Usecase) SetHipotVoltage(ctx context.Context, voltage float64) error {
	if math.IsNaN(voltage) || math.IsInf(voltage, 0) || voltage < 0 {
		return apperrors.NewValidationError("voltage", voltage, "voltage must be a non-negative number")
	}
	if err := u.manualAllowed(); err != nil {
		return err
	}
	if err := u.link.SetHipotVoltage(ctx, voltage); err != nil {
		return err
	}
	u.bus.Logf(events.LevelInfo, "Hi-pot voltage set to %gV", voltage)
	return nil
}

func (u *Usecase) VerifyConnection(ctx context.Context) models.ConnectionStatusResponse {
	ok := u.monitor.CheckNow(ctx)
	status := "healthy"
	if !ok {
		status = "unhealthy"
	}
	return models.ConnectionStatusResponse{
		Status:    status,
		Connected: ok,
		LinkState: u.link.LinkState(),
	}
}

func (u *Usecase) StartTests(ctx context.Context) error {
	return u.seq.RunTests(ctx)
}

func (u *Usecase) StopTests() error {
	if !u.seq.Busy() {
		return apperrors.NewSequenceError(apperrors.ErrNotRunning, "")
	}
	u.seq.StopTests()
	return nil
}

func (u *Usecase) GetResults() []models.SubTestResult {
	return u.seq.GetResults()
}

func (u *Usecase) GetStatus() models.RunStatus {
	status := u.seq.Status()
	status.ActiveRelay = u.relays.ActiveName()
	status.Relays = u.relays.State()
	status.LinkState = u.link.LinkState()
	return status
}

func (u *Usecase) SubmitSerial(serial string) error {
	if u.prompt == nil {
		return apperrors.NewSequenceError(apperrors.ErrSerialNotRequested, "serial number is read from the controller")
	}
	return u.prompt.Submit(serial)
}

func (u *Usecase) CancelSerial() error {
	if u.prompt == nil {
		return apperrors.NewSequenceError(apperrors.ErrSerialNotRequested, "serial number is read from the controller")
	}
	return u.prompt.Cancel()
}

func (u *Usecase) ListRuns(serialNumber string, limit int) ([]entities.TestRun, error) {
	if u.repo == nil {
		return nil, storageDisabled()
	}
	if serialNumber != "" {
		return u.repo.GetBySerial(serialNumber, limit)
	}
	return u.repo.List(limit)
}

func (u *Usecase) GetRun(id string) (*entities.TestRun, error) {
	if u.repo == nil {
		return nil, storageDisabled()
	}
	run, err := u.repo.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("прогон '%s': %w", id, apperrors.ErrDataNotFound)
	}
	return run, err
}
