package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iwtcode/hipotService/internal/config"
	"github.com/iwtcode/hipotService/internal/domain/entities"
	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
	"github.com/stretchr/testify/require"
)

type stubUsecases struct {
	err       error
	relayReq  models.SetRelaysRequest
	voltage   float64
	serial    string
	runsQuery string
	runsLimit int
}

func (s *stubUsecases) ConfirmBatch(models.BatchInfo) error { return s.err }
func (s *stubUsecases) ClearBatch()                         {}
func (s *stubUsecases) SelectDefaultRelay(string) error     { return s.err }

func (s *stubUsecases) SetRelays(_ context.Context, req models.SetRelaysRequest) error {
	s.relayReq = req
	return s.err
}

func (s *stubUsecases) SetHipotVoltage(_ context.Context, v float64) error {
	s.voltage = v
	return s.err
}

func (s *stubUsecases) VerifyConnection(context.Context) models.ConnectionStatusResponse {
	return models.ConnectionStatusResponse{Status: "healthy", Connected: true, LinkState: "connected"}
}

func (s *stubUsecases) StartTests(context.Context) error   { return s.err }
func (s *stubUsecases) StopTests() error                   { return s.err }
func (s *stubUsecases) GetResults() []models.SubTestResult { return nil }

func (s *stubUsecases) GetStatus() models.RunStatus {
	return models.RunStatus{Phase: models.PhaseIdle, ActiveRelay: models.RelayElectromechanical}
}

func (s *stubUsecases) SubmitSerial(serial string) error {
	s.serial = serial
	return s.err
}

func (s *stubUsecases) CancelSerial() error { return s.err }

func (s *stubUsecases) ListRuns(serial string, limit int) ([]entities.TestRun, error) {
	s.runsQuery, s.runsLimit = serial, limit
	return []entities.TestRun{{ID: "r1", SerialNumber: serial}}, s.err
}

func (s *stubUsecases) GetRun(id string) (*entities.TestRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &entities.TestRun{ID: id}, nil
}

func newRouter(uc *stubUsecases) (http.Handler, *events.Bus) {
	bus := events.New()
	h := NewHandler(uc, bus, logging.NewDiscard("test"))
	return ProvideRouter(h, &config.AppConfig{GinMode: "test"}), bus
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", apperrors.NewValidationError("relays", 9, "out of range"), http.StatusBadRequest},
		{"sequence", apperrors.NewSequenceError(apperrors.ErrAlreadyRunning, ""), http.StatusConflict},
		{"not found", apperrors.ErrDataNotFound, http.StatusNotFound},
		{"transport", &apperrors.TransportError{Op: "set_relays", Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{"device", apperrors.ErrDeviceError, http.StatusBadGateway},
		{"storage", apperrors.NewAppError(http.StatusServiceUnavailable, "Result storage unavailable", apperrors.ErrStorageDisabled, true), http.StatusServiceUnavailable},
		{"other", context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newRouter(&stubUsecases{err: tc.err})
			w := do(t, router, http.MethodPost, "/api/v1/tests/start", nil)
			require.Equal(t, tc.code, w.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, "error", resp.Status)
			require.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestStartTestsAccepted(t *testing.T) {
	router, _ := newRouter(&stubUsecases{})
	w := do(t, router, http.MethodPost, "/api/v1/tests/start", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestSetRelaysBindsRequest(t *testing.T) {
	uc := &stubUsecases{}
	router, _ := newRouter(uc)

	w := do(t, router, http.MethodPost, "/api/v1/relays", map[string]interface{}{
		"relays": []int{0, 1}, "state": "closed", "timeout_ms": 500,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []int{0, 1}, uc.relayReq.Relays)
	require.Equal(t, "closed", uc.relayReq.State)
	require.Equal(t, 500, uc.relayReq.TimeoutMs)

	w = do(t, router, http.MethodPost, "/api/v1/relays", map[string]interface{}{"relays": []int{0}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetVoltageRequiresValue(t *testing.T) {
	uc := &stubUsecases{}
	router, _ := newRouter(uc)

	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/api/v1/hipot/voltage", map[string]interface{}{}).Code)

	w := do(t, router, http.MethodPost, "/api/v1/hipot/voltage", map[string]interface{}{"voltage": 0})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0.0, uc.voltage)
}

func TestBatchAndSerialEndpoints(t *testing.T) {
	uc := &stubUsecases{}
	router, _ := newRouter(uc)

	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/api/v1/batch", map[string]string{"work_order_number": "WO"}).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/batch", models.BatchInfo{
		WorkOrderNumber: "WO", LotHardenerNumber: "LH", LotMoldingCompoundNumber: "LM",
	}).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodDelete, "/api/v1/batch", nil).Code)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/serial", models.SerialNumberRequest{SerialNumber: "SN1"}).Code)
	require.Equal(t, "SN1", uc.serial)
}

func TestStatusAndResults(t *testing.T) {
	router, _ := newRouter(&stubUsecases{})

	w := do(t, router, http.MethodGet, "/api/v1/tests/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, models.PhaseIdle, status.Phase)

	w = do(t, router, http.MethodGet, "/api/v1/tests/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/connection/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
}

func TestRunsEndpoints(t *testing.T) {
	uc := &stubUsecases{}
	router, _ := newRouter(uc)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/runs?serial=SN9", nil).Code)
	require.Equal(t, "SN9", uc.runsQuery)
	require.Equal(t, defaultRunsLimit, uc.runsLimit)

	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/runs?limit=-1", nil).Code)

	w := do(t, router, http.MethodGet, "/api/v1/runs/abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id":"abc"`)

	uc.err = apperrors.ErrDataNotFound
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/runs/zzz", nil).Code)
}

func TestRequestIDHeader(t *testing.T) {
	router, _ := newRouter(&stubUsecases{})

	w := do(t, router, http.MethodGet, "/api/v1/tests/status", nil)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/status", nil)
	req.Header.Set(RequestIDHeader, "bench-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "bench-42", w.Header().Get(RequestIDHeader))
}
