package interfaces

import (
	"github.com/iwtcode/hipotService/internal/domain/entities"
)

// TestRunRepository определяет контракт для хранения прогонов испытаний в БД
type TestRunRepository interface {
	Create(run *entities.TestRun) error
	GetByID(id string) (*entities.TestRun, error)
	GetBySerial(serialNumber string, limit int) ([]entities.TestRun, error)
	List(limit int) ([]entities.TestRun, error)
}
