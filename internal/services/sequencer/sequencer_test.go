package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	"github.com/iwtcode/hipotService/internal/services/hardware"
	"github.com/iwtcode/hipotService/internal/services/relay"
	"github.com/iwtcode/hipotService/internal/services/safety"
	"github.com/iwtcode/hipotService/internal/testutil"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
	"github.com/stretchr/testify/require"
)

const ack = "Connection OK"

var batch = models.BatchInfo{
	WorkOrderNumber:          "WO-1",
	LotHardenerNumber:        "LH-2",
	LotMoldingCompoundNumber: "LM-3",
}

type staticSerial struct{ serial string }

func (s staticSerial) Acquire(context.Context) (string, error) { return s.serial, nil }

// blockingSerial ждет отмены контекста.
type blockingSerial struct{}

func (blockingSerial) Acquire(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type memorySink struct {
	mu      sync.Mutex
	reports []models.RunReport
}

func (m *memorySink) Upload(_ context.Context, r models.RunReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func (m *memorySink) Reports() []models.RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RunReport(nil), m.reports...)
}

type harness struct {
	bus  *events.Bus
	fake *testutil.FakeController
	rec  *testutil.EventRecorder
	sink *memorySink
	seq  *Sequencer
}

func newHarness(t *testing.T, fakeAck string, serials SerialSource, allOffOnStop bool) *harness {
	t.Helper()
	bus := events.New()
	logger := logging.NewDiscard("test")
	fake := testutil.NewFakeController(t, fakeAck)

	link := hardware.NewLink(hardware.Config{Address: fake.Addr(), Timeout: time.Second, ConnectionAck: ack}, nil, bus, logger)
	t.Cleanup(func() { _ = link.Close() })
	bank := safety.NewBank(bus, logger)
	t.Cleanup(bank.Close)

	mgr, err := relay.NewManager(relay.NewRemoteBank(link), relay.NewLocalBank(relay.NewMemoryOutput()),
		models.RelayElectromechanical, bank, bus, logger)
	require.NoError(t, err)

	h := &harness{bus: bus, fake: fake, rec: testutil.NewEventRecorder(bus), sink: &memorySink{}}
	h.seq = NewSequencer(Config{
		Plan:         models.DefaultPlan(500, 1600),
		Pause:        2 * time.Millisecond,
		Unit:         UnitConfig{Runtime: 5 * time.Millisecond, SafetyTimeout: time.Second, CurrentCutOff: 5.2},
		AllOffOnStop: allOffOnStop,
	}, link, mgr, serials, h.sink, bus, logger)
	t.Cleanup(h.seq.Close)
	return h
}

func (h *harness) confirmBatch() {
	h.bus.Publish(events.BatchInfoConfirmed{BatchInfo: batch})
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.seq.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("test sequence did not finish")
	}
}

func statuses(results []models.SubTestResult) []models.TestStatus {
	out := make([]models.TestStatus, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}

func TestEndToEndAllPass(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN12345"}, false)
	h.fake.SetCurrents(1.0)
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	results := h.seq.GetResults()
	require.Len(t, results, 6)
	for i, r := range results {
		require.Equal(t, i+1, r.TestNumber)
		require.Equal(t, models.StatusSuccess, r.Status)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, h.rec.Positions())

	serials := h.rec.ByTopic(events.TopicSerialConfirmed)
	require.Len(t, serials, 1)
	require.Equal(t, "SN12345", serials[0].(events.SerialNumberConfirmed).SerialNumber)

	terminated := h.rec.ByTopic(events.TopicTestTerminated)
	require.Len(t, terminated, 1)
	require.Equal(t, models.OutcomeCompleted, terminated[0].(events.TestTerminated).Outcome)
	require.False(t, h.seq.IsRunning())
	require.Equal(t, models.PhaseIdle, h.seq.Phase())
	require.Equal(t, models.OutcomeCompleted, h.seq.LastOutcome())

	reports := h.sink.Reports()
	require.Len(t, reports, 1)
	require.True(t, reports[0].Passed())
	require.Equal(t, batch, reports[0].BatchInfo)
	require.Equal(t, models.RelayState{}, h.fake.Relays())
}

func TestSubTestOrderAndVoltages(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN1"}, false)
	h.confirmBatch()
	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	started := h.rec.ByTopic(events.TopicSubTestStarted)
	require.Len(t, started, 6)
	for i, ev := range started {
		st := ev.(events.SubTestStarted)
		require.Equal(t, i+1, st.TestNumber)
		if i < 3 {
			require.Equal(t, 500.0, st.Voltage)
		} else {
			require.Equal(t, 1600.0, st.Voltage)
		}
	}
}

func TestFailureDoesNotHaltBatch(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN12345"}, false)
	h.fake.SetCurrents(1.0, 1.0, 9.9, 1.0)
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	require.Equal(t, []models.TestStatus{
		models.StatusSuccess, models.StatusSuccess, models.StatusFailure,
		models.StatusSuccess, models.StatusSuccess, models.StatusSuccess,
	}, statuses(h.seq.GetResults()))
	require.Equal(t, models.OutcomeCompleted, h.seq.LastOutcome())

	reports := h.sink.Reports()
	require.Len(t, reports, 1)
	require.False(t, reports[0].Passed())
}

func TestErrorHaltsBatch(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN12345"}, false)
	reads := 0
	h.fake.OnRequest(func(req models.Request) {
		if req.Command != models.CmdReadCurrent {
			return
		}
		reads++
		if reads == 2 {
			h.fake.Fail(models.CmdReadCurrent, "meter overload")
		}
	})
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	require.Equal(t, []models.TestStatus{
		models.StatusSuccess, models.StatusSuccess, models.StatusError,
	}, statuses(h.seq.GetResults()))
	require.Equal(t, models.OutcomeAborted, h.seq.LastOutcome())
	require.Equal(t, []int{0, 1, 2}, h.rec.Positions())
	require.Empty(t, h.sink.Reports())
	require.False(t, h.seq.IsRunning())
	// реле подтеста 3 разомкнуты
	require.Equal(t, models.RelayState{}, h.fake.Relays())
}

func TestSecondRunIsRefused(t *testing.T) {
	h := newHarness(t, ack, blockingSerial{}, false)
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	err := h.seq.RunTests(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAlreadyRunning)
	require.Equal(t, models.PhaseAwaitingSerial, h.seq.Phase())
	require.Len(t, h.rec.ByTopic(events.TopicTestStarted), 1)

	h.seq.StopTests()
	h.wait(t)
	require.Equal(t, models.OutcomeStopped, h.seq.LastOutcome())
	require.Empty(t, h.fake.Requests())
}

func TestConcurrentRunsStartOnce(t *testing.T) {
	h := newHarness(t, ack, blockingSerial{}, false)
	h.confirmBatch()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.seq.RunTests(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrAlreadyRunning)
	}
	require.Equal(t, 1, ok)
	h.seq.StopTests()
	h.wait(t)
}

func TestRunWithoutBatchInfoIsRefused(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN1"}, false)

	err := h.seq.RunTests(context.Background())
	require.ErrorIs(t, err, apperrors.ErrBatchInfoMissing)
	require.Equal(t, models.PhaseIdle, h.seq.Phase())
	require.NotEmpty(t, h.rec.Logs(events.LevelError))

	// неполная информация не принимается
	h.bus.Publish(events.BatchInfoConfirmed{BatchInfo: models.BatchInfo{WorkOrderNumber: "WO-1"}})
	require.ErrorIs(t, h.seq.RunTests(context.Background()), apperrors.ErrBatchInfoMissing)

	h.confirmBatch()
	h.bus.Publish(events.BatchInfoCleared{})
	require.ErrorIs(t, h.seq.RunTests(context.Background()), apperrors.ErrBatchInfoMissing)
}

func TestConnectivityFailureAborts(t *testing.T) {
	h := newHarness(t, "Busy", staticSerial{"SN1"}, false)
	running := false
	h.bus.Subscribe(events.TopicLog, func(events.Event) {
		if h.seq.IsRunning() {
			running = true
		}
	})
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	require.Equal(t, models.OutcomeAborted, h.seq.LastOutcome())
	require.Empty(t, h.rec.ByTopic(events.TopicSubTestStarted))
	require.Empty(t, h.rec.Positions())
	require.Len(t, h.rec.ByTopic(events.TopicTestTerminated), 1)
	require.Empty(t, h.seq.GetResults())
	require.False(t, running)
}

func TestEmptySerialAborts(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"  "}, false)
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	require.Equal(t, models.OutcomeAborted, h.seq.LastOutcome())
	require.Empty(t, h.rec.ByTopic(events.TopicSerialConfirmed))
	require.Empty(t, h.fake.Requests())
}

func TestStopMidRun(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN12345"}, false)
	events.On(h.bus, func(ev events.SubTestStarted) {
		if ev.TestNumber == 2 {
			h.seq.StopTests()
		}
	})
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	results := h.seq.GetResults()
	require.Less(t, len(results), 6)
	require.Len(t, results, 2)
	require.Len(t, h.rec.ByTopic(events.TopicSubTestStarted), 2)
	require.False(t, h.seq.IsRunning())
	require.Equal(t, models.OutcomeStopped, h.seq.LastOutcome())
	require.NotContains(t, h.rec.Positions(), FinalPosition)
	require.Empty(t, h.sink.Reports())
	require.NotEmpty(t, h.rec.Logs(events.LevelWarning))
}

func TestStopOpensAllRelaysWhenConfigured(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN12345"}, true)
	events.On(h.bus, func(ev events.SubTestStarted) {
		if ev.TestNumber == 1 {
			h.seq.StopTests()
		}
	})
	h.confirmBatch()

	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	var allOff bool
	for _, req := range h.fake.Requests() {
		if req.Command == models.CmdSetRelays && len(req.RelayIndices) == models.RelayCount {
			allOff = true
		}
	}
	require.True(t, allOff)
	require.Equal(t, models.RelayState{}, h.fake.Relays())
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN1"}, false)
	h.seq.StopTests()
	require.Empty(t, h.rec.Logs(events.LevelWarning))
}

func TestResultsAreSnapshots(t *testing.T) {
	h := newHarness(t, ack, staticSerial{"SN1"}, false)
	h.confirmBatch()
	require.NoError(t, h.seq.RunTests(context.Background()))
	h.wait(t)

	first := h.seq.GetResults()
	first[0].Status = models.StatusError
	require.Equal(t, models.StatusSuccess, h.seq.GetResults()[0].Status)

	status := h.seq.Status()
	require.Equal(t, "SN1", status.SerialNumber)
	require.Equal(t, FinalPosition, status.Position)
	require.Len(t, status.Results, 6)
}
