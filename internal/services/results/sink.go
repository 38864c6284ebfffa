package results

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/entities"
	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"

	"github.com/google/uuid"
)

const produceTimeout = 10 * time.Second

// Sink сохраняет итог прогона в БД и публикует его в Kafka.
// Любое из хранилищ может отсутствовать (nil). Ошибки журналируются и не возвращаются.
type Sink struct {
	repo     interfaces.TestRunRepository
	producer interfaces.KafkaService
	bus      *events.Bus
	logger   *logging.Logger
}

func NewSink(repo interfaces.TestRunRepository, producer interfaces.KafkaService, bus *events.Bus, logger *logging.Logger) *Sink {
	return &Sink{
		repo:     repo,
		producer: producer,
		bus:      bus,
		logger:   logger.WithPrefix("Results"),
	}
}

// ToEntity преобразует итог прогона в запись БД с новым идентификатором.
func ToEntity(report models.RunReport) *entities.TestRun {
	run := &entities.TestRun{
		ID:                       uuid.NewString(),
		SerialNumber:             report.SerialNumber,
		WorkOrderNumber:          report.BatchInfo.WorkOrderNumber,
		LotHardenerNumber:        report.BatchInfo.LotHardenerNumber,
		LotMoldingCompoundNumber: report.BatchInfo.LotMoldingCompoundNumber,
		Outcome:                  string(report.Outcome),
		Passed:                   report.Passed(),
		StartedAt:                report.StartedAt,
		FinishedAt:               report.FinishedAt,
	}
	for _, r := range report.Results {
		run.Results = append(run.Results, entities.TestResultRecord{
			RunID:      run.ID,
			TestNumber: r.TestNumber,
			Voltage:    r.Voltage,
			Current:    r.Current,
			Status:     string(r.Status),
		})
	}
	return run
}

func (s *Sink) Upload(ctx context.Context, report models.RunReport) {
	if s.repo == nil && s.producer == nil {
		s.logger.Warn("No result storage configured, results are not uploaded", "serial", report.SerialNumber)
		return
	}

	run := ToEntity(report)
	if s.repo != nil {
		if err := s.repo.Create(run); err != nil {
			s.logger.Error("Failed to save test run", "run_id", run.ID, "serial", run.SerialNumber, "error", err)
			s.bus.Logf(events.LevelError, "Failed to save results: %v", err)
		} else {
			s.logger.Info("Test run saved", "run_id", run.ID, "serial", run.SerialNumber, "passed", run.Passed)
		}
	}

	if s.producer != nil {
		jsonData, err := json.Marshal(run)
		if err != nil {
			s.logger.Error("Failed to serialize test run for Kafka", "run_id", run.ID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, produceTimeout)
		defer cancel()
		if err := s.producer.Produce(ctx, []byte(run.SerialNumber), jsonData); err != nil {
			s.logger.Error("Failed to send test run to Kafka", "run_id", run.ID, "error", err)
			s.bus.Logf(events.LevelError, "Failed to publish results: %v", err)
		}
	}
}
