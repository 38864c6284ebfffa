package interfaces

import (
	"context"

	"github.com/iwtcode/hipotService/internal/domain/entities"
	"github.com/iwtcode/hipotService/internal/domain/models"
)

// Usecases - это агрегирующий интерфейс для всех операторских сценариев
type Usecases interface {
	ConfirmBatch(info models.BatchInfo) error
	ClearBatch()
	SelectDefaultRelay(name string) error
	SetRelays(ctx context.Context, req models.SetRelaysRequest) error
	SetHipotVoltage(ctx context.Context, voltage float64) error
	VerifyConnection(ctx context.Context) models.ConnectionStatusResponse
	StartTests(ctx context.Context) error
	StopTests() error
	GetResults() []models.SubTestResult
	GetStatus() models.RunStatus
	SubmitSerial(serial string) error
	CancelSerial() error
	ListRuns(serialNumber string, limit int) ([]entities.TestRun, error)
	GetRun(id string) (*entities.TestRun, error)
}
