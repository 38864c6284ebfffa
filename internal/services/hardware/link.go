package hardware

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
)

// LinkState - состояние сессии с контроллером.
type LinkState string

const (
	StateDisconnected LinkState = "disconnected"
	StateConnecting   LinkState = "connecting"
	StateConnected    LinkState = "connected"
)

// DialFunc открывает транспорт к контроллеру.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config содержит параметры клиента.
type Config struct {
	Address       string
	Timeout       time.Duration
	ConnectionAck string
}

// Link - клиент запрос/ответ к удаленному контроллеру реле и hi-pot источника.
// Сессия открывается лениво и переиспользуется; при сбое транспорта сессия
// сбрасывается, и следующий вызов открывает ее заново. Повторов внутри вызова нет.
// Одновременно выполняется только один запрос.
type Link struct {
	mu     sync.Mutex
	cfg    Config
	dial   DialFunc
	conn   net.Conn
	reader *bufio.Reader
	state  LinkState
	stMu   sync.RWMutex
	bus    *events.Bus
	logger *logging.Logger
}

// NewLink создает клиента. dial может быть nil - тогда используется net.Dialer.
func NewLink(cfg Config, dial DialFunc, bus *events.Bus, logger *logging.Logger) *Link {
	if dial == nil {
		d := &net.Dialer{Timeout: cfg.Timeout}
		dial = d.DialContext
	}
	return &Link{
		cfg:    cfg,
		dial:   dial,
		state:  StateDisconnected,
		bus:    bus,
		logger: logger.WithPrefix("LINK"),
	}
}

// State возвращает текущее состояние сессии.
func (l *Link) State() LinkState {
	l.stMu.RLock()
	defer l.stMu.RUnlock()
	return l.state
}

// LinkState возвращает состояние сессии строкой.
func (l *Link) LinkState() string { return string(l.State()) }

func (l *Link) setState(s LinkState) {
	l.stMu.Lock()
	prev := l.state
	l.state = s
	l.stMu.Unlock()

	if prev != s {
		l.logger.Debug("Link state changed", "from", prev, "to", s)
	}
}

// Send отправляет команду и возвращает ответ. Ошибки транспорта превращаются
// в ответ со статусом error и публикуются в шину; паники наружу не выходят.
func (l *Link) Send(ctx context.Context, req models.Request) models.Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	resp, err := l.exchange(ctx, req)
	if err != nil {
		l.invalidate()
		l.logger.Error("Command failed", "command", req.Command, "error", err)
		l.bus.Logf(events.LevelError, "Connection error: %v", err)
		return models.ErrorResult(fmt.Sprintf("Connection failed: %v", err))
	}
	return resp
}

func (l *Link) exchange(ctx context.Context, req models.Request) (models.Response, error) {
	if err := l.ensureConnected(ctx); err != nil {
		return models.Response{}, err
	}

	var deadline time.Time
	if l.cfg.Timeout > 0 {
		deadline = time.Now().Add(l.cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := l.conn.SetDeadline(deadline); err != nil {
		return models.Response{}, &apperrors.TransportError{Op: "deadline " + req.Command, Err: err}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return models.Response{}, &apperrors.TransportError{Op: "encode " + req.Command, Err: err}
	}
	payload = append(payload, '\n')
	if _, err := l.conn.Write(payload); err != nil {
		return models.Response{}, &apperrors.TransportError{Op: "write " + req.Command, Err: err}
	}

	line, err := l.reader.ReadBytes('\n')
	if err != nil {
		return models.Response{}, &apperrors.TransportError{Op: "read " + req.Command, Err: err}
	}

	var resp models.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return models.Response{}, &apperrors.TransportError{Op: "decode " + req.Command, Err: err}
	}

	l.logger.Debug("Command completed", "command", req.Command, "status", resp.Status)
	return resp, nil
}

func (l *Link) ensureConnected(ctx context.Context) error {
	if l.conn != nil {
		return nil
	}

	l.setState(StateConnecting)
	dialCtx := ctx
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	conn, err := l.dial(dialCtx, "tcp", l.cfg.Address)
	if err != nil {
		l.setState(StateDisconnected)
		return &apperrors.TransportError{Op: "connect " + l.cfg.Address, Err: err}
	}

	l.conn = conn
	l.reader = bufio.NewReader(conn)
	l.setState(StateConnected)
	l.logger.Info("Connected to controller", "address", l.cfg.Address)
	return nil
}

func (l *Link) invalidate() {
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = nil
	l.reader = nil
	l.setState(StateDisconnected)
}

// Disconnect закрывает текущую сессию; следующий вызов откроет новую.
func (l *Link) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidate()
}

// Close закрывает соединение.
func (l *Link) Close() error {
	l.Disconnect()
	return nil
}

// CheckConnection возвращает true, только если контроллер ответил успехом
// и ровно ожидаемым подтверждением.
func (l *Link) CheckConnection(ctx context.Context) bool {
	resp := l.Send(ctx, models.Request{Command: models.CmdCheckConnection})
	ok := resp.OK() && resp.Message == l.cfg.ConnectionAck
	if !ok {
		l.logger.Warn("Connection check failed", "status", resp.Status, "message", resp.Message)
	}
	return ok
}

// SetRelays задает состояние набора реле (true = замкнуто).
func (l *Link) SetRelays(ctx context.Context, indices []int, state bool) error {
	st := state
	return l.do(ctx, models.Request{
		Command:      models.CmdSetRelays,
		RelayIndices: append([]int(nil), indices...),
		State:        &st,
	})
}

// OpenRelay размыкает одно реле.
func (l *Link) OpenRelay(ctx context.Context, index int) error {
	n := index
	return l.do(ctx, models.Request{Command: models.CmdOpenRelay, RelayNumber: &n})
}

// CloseRelay замыкает одно реле.
func (l *Link) CloseRelay(ctx context.Context, index int) error {
	n := index
	return l.do(ctx, models.Request{Command: models.CmdCloseRelay, RelayNumber: &n})
}

// SetHipotVoltage задает напряжение hi-pot источника.
func (l *Link) SetHipotVoltage(ctx context.Context, voltage float64) error {
	v := voltage
	return l.do(ctx, models.Request{Command: models.CmdSetHipotVoltage, Voltage: &v})
}

// ReadCurrent читает ток утечки в миллиамперах.
func (l *Link) ReadCurrent(ctx context.Context) (float64, error) {
	resp := l.Send(ctx, models.Request{Command: models.CmdReadCurrent})
	if err := responseError(models.CmdReadCurrent, resp); err != nil {
		return 0, err
	}
	if resp.Current == nil {
		return 0, fmt.Errorf("%s: ответ без поля current: %w", models.CmdReadCurrent, apperrors.ErrDeviceError)
	}
	return *resp.Current, nil
}

// GetSerialNumber запрашивает серийный номер изделия у контроллера.
func (l *Link) GetSerialNumber(ctx context.Context) (string, error) {
	resp := l.Send(ctx, models.Request{Command: models.CmdGetSerialNumber})
	if err := responseError(models.CmdGetSerialNumber, resp); err != nil {
		return "", err
	}
	return resp.SerialNumber, nil
}

func (l *Link) do(ctx context.Context, req models.Request) error {
	return responseError(req.Command, l.Send(ctx, req))
}

func responseError(command string, resp models.Response) error {
	if resp.OK() {
		return nil
	}
	return fmt.Errorf("%s: %s: %w", command, resp.Message, apperrors.ErrDeviceError)
}
