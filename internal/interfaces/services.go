package interfaces

import (
	"context"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
)

// Sequencer определяет контракт секвенсора испытаний.
type Sequencer interface {
	RunTests(ctx context.Context) error
	StopTests()
	GetResults() []models.SubTestResult
	Status() models.RunStatus
	BatchInfo() (models.BatchInfo, bool)
	IsRunning() bool
	Busy() bool
}

// RelayService определяет контракт выбора и управления банком реле.
type RelayService interface {
	Select(name string) error
	ActiveName() string
	State() models.RelayState
	SetRelaysWithTimeout(ctx context.Context, indices []int, state interface{}, timeout time.Duration) error
	AllOff(ctx context.Context) error
}

// HardwareLink определяет контракт клиента контроллера, нужный операторским сценариям.
type HardwareLink interface {
	CheckConnection(ctx context.Context) bool
	SetHipotVoltage(ctx context.Context, voltage float64) error
	LinkState() string
}

// SerialPrompt определяет контракт ввода серийного номера оператором.
type SerialPrompt interface {
	Submit(serial string) error
	Cancel() error
	Waiting() bool
}

// ConnectionMonitor определяет контракт проверки связи с публикацией статуса.
type ConnectionMonitor interface {
	CheckNow(ctx context.Context) bool
}
