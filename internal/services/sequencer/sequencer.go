package sequencer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"

	"go.uber.org/atomic"
)

// FinalPosition - маркер прогресса после выгрузки результатов.
const FinalPosition = 7

// Hardware - часть клиента контроллера, нужная секвенсору.
type Hardware interface {
	Hipot
	CheckConnection(ctx context.Context) bool
}

// SerialSource получает серийный номер изделия. Блокирующий вызов.
type SerialSource interface {
	Acquire(ctx context.Context) (string, error)
}

// ResultsSink принимает итог прогона. Ошибки выгрузки обрабатывает сам.
type ResultsSink interface {
	Upload(ctx context.Context, report models.RunReport)
}

// Config - параметры прогона.
type Config struct {
	Plan         []models.SubTestSpec
	Pause        time.Duration // пауза между подтестами
	Unit         UnitConfig
	AllOffOnStop bool
}

// Sequencer ведет прогон: проверка партии, серийный номер, шесть подтестов, выгрузка.
type Sequencer struct {
	cfg     Config
	hw      Hardware
	relays  Relays
	serials SerialSource
	sink    ResultsSink
	bus     *events.Bus
	logger  *logging.Logger

	active  *atomic.Bool // существует рабочая горутина
	running *atomic.Bool // кооперативный флаг, снимается StopTests

	mu           sync.Mutex
	batch        *models.BatchInfo
	phase        models.Phase
	serial       string
	position     int
	results      []models.SubTestResult
	lastOutcome  models.Outcome
	stopCh       chan struct{}
	stopped      bool
	serialCancel context.CancelFunc
	done         chan struct{}

	subs []events.Subscription
}

func NewSequencer(cfg Config, hw Hardware, relays Relays, serials SerialSource, sink ResultsSink, bus *events.Bus, logger *logging.Logger) *Sequencer {
	if len(cfg.Plan) == 0 {
		cfg.Plan = models.DefaultPlan(500, 1600)
	}
	done := make(chan struct{})
	close(done)

	s := &Sequencer{
		cfg:     cfg,
		hw:      hw,
		relays:  relays,
		serials: serials,
		sink:    sink,
		bus:     bus,
		logger:  logger.WithPrefix("Sequencer"),
		active:  atomic.NewBool(false),
		running: atomic.NewBool(false),
		phase:   models.PhaseIdle,
		done:    done,
	}
	s.subs = append(s.subs,
		events.On(bus, s.onBatchConfirmed),
		events.On(bus, s.onBatchCleared),
	)
	return s
}

func (s *Sequencer) onBatchConfirmed(ev events.BatchInfoConfirmed) {
	if !ev.BatchInfo.Complete() {
		s.logger.Warn("Incomplete batch information ignored", "batch", ev.BatchInfo)
		s.bus.Logf(events.LevelError, "Batch information is incomplete, all fields are required.")
		return
	}
	info := ev.BatchInfo
	s.mu.Lock()
	s.batch = &info
	s.mu.Unlock()
	s.logger.Info("Batch information confirmed", "work_order", info.WorkOrderNumber)
}

func (s *Sequencer) onBatchCleared(events.BatchInfoCleared) {
	s.mu.Lock()
	s.batch = nil
	s.mu.Unlock()
	s.logger.Info("Batch information cleared")
}

// BatchInfo возвращает подтвержденную информацию о партии.
func (s *Sequencer) BatchInfo() (models.BatchInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch == nil {
		return models.BatchInfo{}, false
	}
	return *s.batch, true
}

// RunTests запускает прогон в отдельной горутине и сразу возвращается.
// Повторный запуск или отсутствие информации о партии - SequenceError без изменения состояния.
func (s *Sequencer) RunTests(ctx context.Context) error {
	s.mu.Lock()
	if s.active.Load() {
		s.mu.Unlock()
		return s.refuse(apperrors.ErrAlreadyRunning, "Test already running.")
	}
	if s.batch == nil {
		s.mu.Unlock()
		return s.refuse(apperrors.ErrBatchInfoMissing, "Batch information not set.")
	}
	batch := *s.batch
	stop := make(chan struct{})
	done := make(chan struct{})
	s.phase = models.PhaseAwaitingSerial
	s.serial = ""
	s.position = 0
	s.results = nil
	s.stopCh = stop
	s.stopped = false
	s.done = done
	s.active.Store(true)
	s.mu.Unlock()

	go s.execute(context.WithoutCancel(ctx), batch, stop, done)
	return nil
}

func (s *Sequencer) refuse(kind error, msg string) error {
	err := apperrors.NewSequenceError(kind, msg)
	s.logger.Error("Run refused", "error", err)
	s.bus.Logf(events.LevelError, "%s", msg)
	return err
}

func (s *Sequencer) execute(ctx context.Context, batch models.BatchInfo, stop <-chan struct{}, done chan struct{}) {
	outcome := models.OutcomeAborted
	startedAt := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Test sequence panicked", "panic", r)
			s.bus.Logf(events.LevelError, "Test sequence failed: %v", r)
			outcome = models.OutcomeAborted
		}
		s.running.Store(false)
		if outcome == models.OutcomeStopped && s.cfg.AllOffOnStop {
			if err := s.relays.AllOff(ctx); err != nil {
				s.logger.Error("Failed to open relays after stop", "error", err)
				s.bus.Logf(events.LevelError, "Failed to open relays after stop: %v", err)
			}
		}

		s.mu.Lock()
		s.phase = models.PhaseIdle
		s.lastOutcome = outcome
		s.serialCancel = nil
		s.mu.Unlock()

		s.logger.Info("Test sequence finished", "outcome", outcome, "duration", time.Since(startedAt))
		s.bus.Publish(events.TestTerminated{Outcome: outcome})
		s.active.Store(false)
		close(done)
	}()

	s.bus.Publish(events.TestStarted{TestName: "Full Test Suite"})

	serial, err := s.acquireSerial(ctx, stop)
	if err != nil {
		if isClosed(stop) {
			outcome = models.OutcomeStopped
			return
		}
		s.logger.Error("Serial number not provided", "error", err)
		s.bus.Logf(events.LevelError, "Serial number not provided, test aborted.")
		return
	}
	s.mu.Lock()
	s.serial = serial
	s.mu.Unlock()
	s.bus.Publish(events.SerialNumberConfirmed{SerialNumber: serial})

	if !s.hw.CheckConnection(ctx) {
		err := apperrors.NewSequenceError(apperrors.ErrConnectivityCheckFailed, "Hardware connection check failed, test aborted.")
		s.logger.Error("Connectivity check failed", "error", err)
		s.bus.Logf(events.LevelError, "%s", err.Msg)
		return
	}
	if isClosed(stop) {
		outcome = models.OutcomeStopped
		return
	}

	s.running.Store(true)
	s.mu.Lock()
	s.phase = models.PhaseRunning
	s.mu.Unlock()
	s.logger.Info("Test sequence started", "serial", serial, "work_order", batch.WorkOrderNumber)
	s.setPosition(0)

	halted := false
	for i, spec := range s.cfg.Plan {
		if !s.running.Load() {
			break
		}

		unit := NewUnit(spec, s.cfg.Unit, s.hw, s.relays, s.bus, s.logger)
		s.logger.Debug("Running", "unit", unit.String())
		res := unit.Run(ctx)
		s.appendResult(res)

		if res.Status == models.StatusError {
			halted = true
			break
		}
		s.setPosition(i + 1)

		if i < len(s.cfg.Plan)-1 && !s.pause(stop) {
			break
		}
	}

	switch {
	case halted:
		outcome = models.OutcomeAborted
		s.bus.Logf(events.LevelError, "Test sequence halted after a sub-test error.")
	case !s.running.Load():
		outcome = models.OutcomeStopped
	default:
		outcome = models.OutcomeCompleted
		s.upload(ctx, models.RunReport{
			SerialNumber: serial,
			BatchInfo:    batch,
			Outcome:      outcome,
			Results:      s.GetResults(),
			StartedAt:    startedAt,
			FinishedAt:   time.Now(),
		})
		s.setPosition(FinalPosition)
	}
}

func (s *Sequencer) acquireSerial(ctx context.Context, stop <-chan struct{}) (string, error) {
	serialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.serialCancel = cancel
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return "", context.Canceled
	}

	serial, err := s.serials.Acquire(serialCtx)
	if err != nil {
		return "", err
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return "", apperrors.NewSequenceError(apperrors.ErrSerialNotProvided, "empty serial number")
	}
	return serial, nil
}

func (s *Sequencer) upload(ctx context.Context, report models.RunReport) {
	s.bus.Logf(events.LevelInfo, "Uploading results to the database.")
	if s.sink == nil {
		return
	}
	s.sink.Upload(ctx, report)
}

// pause ждет между подтестами; false - прервано остановкой.
func (s *Sequencer) pause(stop <-chan struct{}) bool {
	if s.cfg.Pause <= 0 {
		return !isClosed(stop)
	}
	t := time.NewTimer(s.cfg.Pause)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

func (s *Sequencer) setPosition(pos int) {
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()
	s.bus.Publish(events.ProgressUpdate{Position: pos})
}

func (s *Sequencer) appendResult(res models.SubTestResult) {
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
}

// StopTests снимает флаг выполнения. Текущий подтест доводится до конца.
func (s *Sequencer) StopTests() {
	s.mu.Lock()
	if !s.active.Load() || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	if s.serialCancel != nil {
		s.serialCancel()
	}
	s.mu.Unlock()

	s.running.Store(false)
	s.logger.Warn("Test execution stopped by user")
	s.bus.Logf(events.LevelWarning, "Test execution stopped by user.")
}

// GetResults возвращает копию накопленных результатов.
func (s *Sequencer) GetResults() []models.SubTestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SubTestResult, len(s.results))
	copy(out, s.results)
	return out
}

// IsRunning сообщает, выполняются ли подтесты.
func (s *Sequencer) IsRunning() bool { return s.running.Load() }

// Busy сообщает, что прогон начат и еще не завершен (включая ожидание серийного номера).
func (s *Sequencer) Busy() bool { return s.active.Load() }

func (s *Sequencer) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Sequencer) LastOutcome() models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// Done возвращает канал, закрываемый по завершении текущего (или последнего) прогона.
func (s *Sequencer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Status возвращает снимок состояния прогона.
func (s *Sequencer) Status() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]models.SubTestResult, len(s.results))
	copy(results, s.results)
	return models.RunStatus{
		Phase:        s.phase,
		IsRunning:    s.running.Load(),
		SerialNumber: s.serial,
		Position:     s.position,
		LastOutcome:  s.lastOutcome,
		Results:      results,
	}
}

// Close отписывает секвенсор от шины и останавливает текущий прогон.
func (s *Sequencer) Close() {
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.StopTests()
	<-s.Done()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
