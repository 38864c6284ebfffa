package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/entities"
	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	"github.com/iwtcode/hipotService/internal/services/hardware"
	"github.com/iwtcode/hipotService/internal/services/monitor"
	"github.com/iwtcode/hipotService/internal/services/relay"
	"github.com/iwtcode/hipotService/internal/services/safety"
	"github.com/iwtcode/hipotService/internal/services/sequencer"
	"github.com/iwtcode/hipotService/internal/services/serial"
	"github.com/iwtcode/hipotService/internal/testutil"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
	"github.com/stretchr/testify/require"

	"gorm.io/gorm"
)

const ack = "Connection OK"

var batch = models.BatchInfo{WorkOrderNumber: "WO-1", LotHardenerNumber: "LH-2", LotMoldingCompoundNumber: "LM-3"}

type stubRepo struct {
	runs []entities.TestRun
}

func (s *stubRepo) Create(run *entities.TestRun) error {
	s.runs = append(s.runs, *run)
	return nil
}

func (s *stubRepo) GetByID(id string) (*entities.TestRun, error) {
	for i := range s.runs {
		if s.runs[i].ID == id {
			return &s.runs[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) GetBySerial(serial string, limit int) ([]entities.TestRun, error) {
	var out []entities.TestRun
	for _, r := range s.runs {
		if limit > 0 && len(out) == limit {
			break
		}
		if r.SerialNumber == serial {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRepo) List(int) ([]entities.TestRun, error) { return s.runs, nil }

type env struct {
	bus    *events.Bus
	fake   *testutil.FakeController
	rec    *testutil.EventRecorder
	seq    *sequencer.Sequencer
	mgr    *relay.Manager
	prompt *serial.Prompt
	uc     interfaces.Usecases
	router *EventRouter
}

func newEnv(t *testing.T, repo interfaces.TestRunRepository) *env {
	t.Helper()
	bus := events.New()
	logger := logging.NewDiscard("test")
	fake := testutil.NewFakeController(t, ack)

	link := hardware.NewLink(hardware.Config{Address: fake.Addr(), Timeout: time.Second, ConnectionAck: ack}, nil, bus, logger)
	t.Cleanup(func() { _ = link.Close() })
	bank := safety.NewBank(bus, logger)
	t.Cleanup(bank.Close)
	mgr, err := relay.NewManager(relay.NewRemoteBank(link), relay.NewLocalBank(relay.NewMemoryOutput()),
		models.RelayElectromechanical, bank, bus, logger)
	require.NoError(t, err)

	prompt := serial.NewPrompt(time.Second, bus, logger)
	seq := sequencer.NewSequencer(sequencer.Config{
		Plan: models.DefaultPlan(500, 1600),
		Unit: sequencer.UnitConfig{Runtime: time.Millisecond, SafetyTimeout: time.Second, CurrentCutOff: 5.2},
	}, link, mgr, prompt, nil, bus, logger)
	t.Cleanup(seq.Close)

	e := &env{bus: bus, fake: fake, rec: testutil.NewEventRecorder(bus), seq: seq, mgr: mgr, prompt: prompt}
	e.uc = NewUsecases(Deps{
		Sequencer: seq,
		Relays:    mgr,
		Link:      link,
		Monitor:   monitor.NewMonitor(link, seq.Busy, bus, logger),
		Prompt:    prompt,
		Repo:      repo,
		Bus:       bus,
	})
	e.router = NewEventRouter(e.uc, bus, logger)
	t.Cleanup(e.router.Close)
	return e
}

func TestFullRunThroughUsecases(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, e.uc.StartTests(ctx), apperrors.ErrBatchInfoMissing)
	require.True(t, apperrors.IsValidation(e.uc.ConfirmBatch(models.BatchInfo{WorkOrderNumber: "WO"})))
	require.NoError(t, e.uc.ConfirmBatch(batch))
	require.NoError(t, e.uc.StartTests(ctx))

	require.Eventually(t, e.prompt.Waiting, time.Second, 5*time.Millisecond)
	require.Equal(t, models.PhaseAwaitingSerial, e.uc.GetStatus().Phase)
	require.NoError(t, e.uc.SubmitSerial("SN12345"))

	<-e.seq.Done()
	status := e.uc.GetStatus()
	require.Equal(t, models.OutcomeCompleted, status.LastOutcome)
	require.Equal(t, "SN12345", status.SerialNumber)
	require.Equal(t, models.RelayElectromechanical, status.ActiveRelay)
	require.Equal(t, "connected", status.LinkState)
	require.Len(t, e.uc.GetResults(), 6)
	require.ErrorIs(t, e.uc.StopTests(), apperrors.ErrNotRunning)
}

func TestManualControlBlockedDuringRun(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, e.uc.ConfirmBatch(batch))
	require.NoError(t, e.uc.StartTests(ctx))
	require.Eventually(t, e.prompt.Waiting, time.Second, 5*time.Millisecond)

	err := e.uc.SetRelays(ctx, models.SetRelaysRequest{Relays: []int{0}, State: "closed"})
	require.ErrorIs(t, err, apperrors.ErrAlreadyRunning)
	require.ErrorIs(t, e.uc.SetHipotVoltage(ctx, 500), apperrors.ErrAlreadyRunning)
	require.ErrorIs(t, e.uc.SelectDefaultRelay(models.RelaySolidState), apperrors.ErrAlreadyRunning)
	require.Equal(t, models.RelayElectromechanical, e.mgr.ActiveName())

	require.NoError(t, e.uc.CancelSerial())
	<-e.seq.Done()
	require.Equal(t, models.OutcomeAborted, e.seq.LastOutcome())
}

func TestManualRelayAndVoltage(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	require.True(t, apperrors.IsValidation(e.uc.SetHipotVoltage(ctx, -1)))
	require.NoError(t, e.uc.SetHipotVoltage(ctx, 1600))
	require.Equal(t, 1600.0, e.fake.Voltage())

	require.True(t, apperrors.IsValidation(e.uc.SetRelays(ctx, models.SetRelaysRequest{Relays: []int{9}, State: true})))
	require.True(t, apperrors.IsValidation(e.uc.SetRelays(ctx, models.SetRelaysRequest{Relays: []int{1}, State: "half"})))
	require.NoError(t, e.uc.SetRelays(ctx, models.SetRelaysRequest{Relays: []int{1, 2}, State: "closed", TimeoutMs: 30}))
	require.Equal(t, models.RelayState{1: true, 2: true}, e.fake.Relays())

	// таймер безопасности размыкает реле
	require.Eventually(t, func() bool { return e.fake.Relays() == models.RelayState{} }, 2*time.Second, 10*time.Millisecond)
}

func TestEventRouterExecutesOperatorEvents(t *testing.T) {
	e := newEnv(t, nil)

	e.bus.Publish(events.DefaultRelaySelected{SelectedRelay: models.RelaySolidState})
	require.Equal(t, models.RelaySolidState, e.mgr.ActiveName())

	e.bus.Publish(events.DefaultRelaySelected{SelectedRelay: "Mercury"})
	require.Equal(t, models.RelaySolidState, e.mgr.ActiveName())
	require.NotEmpty(t, e.rec.Logs(events.LevelError))

	e.bus.Publish(events.SetRelays{Relays: []int{3}, State: "closed"})
	require.True(t, e.mgr.State()[3])
	require.Empty(t, e.fake.Requests())

	e.bus.Publish(events.SetHipotVoltage{Voltage: 500})
	require.Equal(t, 500.0, e.fake.Voltage())

	e.bus.Publish(events.VerifyConnection{})
	statuses := e.rec.ByTopic(events.TopicConnectionStatus)
	require.Len(t, statuses, 1)
	require.True(t, statuses[0].(events.ConnectionStatus).Connected)
}

func TestVerifyConnectionReportsUnhealthy(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.Fail(models.CmdCheckConnection, "relay board fault")

	resp := e.uc.VerifyConnection(context.Background())
	require.False(t, resp.Connected)
	require.Equal(t, "unhealthy", resp.Status)
}

func TestRunHistory(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.uc.ListRuns("", 10)
	require.ErrorIs(t, err, apperrors.ErrStorageDisabled)

	repo := &stubRepo{runs: []entities.TestRun{{ID: "a", SerialNumber: "SN1"}, {ID: "b", SerialNumber: "SN2"}}}
	e = newEnv(t, repo)

	runs, err := e.uc.ListRuns("SN2", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run, err := e.uc.GetRun("a")
	require.NoError(t, err)
	require.Equal(t, "SN1", run.SerialNumber)

	_, err = e.uc.GetRun("zzz")
	require.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestRunHistoryBySerialHonorsLimit(t *testing.T) {
	repo := &stubRepo{runs: []entities.TestRun{
		{ID: "c", SerialNumber: "SN7"},
		{ID: "b", SerialNumber: "SN7"},
		{ID: "x", SerialNumber: "SN8"},
		{ID: "a", SerialNumber: "SN7"},
	}}
	e := newEnv(t, repo)

	runs, err := e.uc.ListRuns("SN7", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "c", runs[0].ID)
	require.Equal(t, "b", runs[1].ID)

	runs, err = e.uc.ListRuns("SN7", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}
