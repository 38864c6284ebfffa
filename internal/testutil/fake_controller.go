package testutil

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/iwtcode/hipotService/internal/domain/models"
)

// FakeController - TCP-имитация контроллера реле и hi-pot источника
// (построчный JSON, как у настоящего устройства).
type FakeController struct {
	ln net.Listener

	mu        sync.Mutex
	ack       string
	serial    string
	relays    models.RelayState
	voltage   float64
	currents  []float64
	reads     int
	requests  []models.Request
	conns     int
	clients   []net.Conn
	failures  map[string]string
	drops     map[string]int
	onRequest func(models.Request)
}

// NewFakeController запускает имитацию на случайном локальном порту.
func NewFakeController(t *testing.T, ack string) *FakeController {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &FakeController{
		ln:       ln,
		ack:      ack,
		serial:   "SN-FAKE",
		currents: []float64{1.0},
		failures: make(map[string]string),
		drops:    make(map[string]int),
	}
	go f.serve()
	t.Cleanup(f.Close)
	return f
}

// Addr возвращает адрес host:port.
func (f *FakeController) Addr() string { return f.ln.Addr().String() }

// SetCurrents задает последовательность показаний read_current; последнее повторяется.
func (f *FakeController) SetCurrents(values ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currents = append([]float64(nil), values...)
	f.reads = 0
}

// SetSerial задает ответ get_serial_number.
func (f *FakeController) SetSerial(serial string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial = serial
}

// Fail заставляет команду отвечать статусом error (пустое msg снимает сбой).
func (f *FakeController) Fail(command, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg == "" {
		delete(f.failures, command)
		return
	}
	f.failures[command] = msg
}

// DropNext закрывает соединение вместо ответа на следующие n запросов command.
func (f *FakeController) DropNext(command string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops[command] = n
}

// OnRequest задает хук, вызываемый при каждом запросе (вне блокировки).
func (f *FakeController) OnRequest(fn func(models.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRequest = fn
}

// Requests возвращает принятые запросы.
func (f *FakeController) Requests() []models.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Request(nil), f.requests...)
}

// Commands возвращает имена принятых команд по порядку.
func (f *FakeController) Commands() []string {
	var out []string
	for _, r := range f.Requests() {
		out = append(out, r.Command)
	}
	return out
}

// Connections возвращает число принятых соединений.
func (f *FakeController) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns
}

// Relays возвращает состояние реле устройства.
func (f *FakeController) Relays() models.RelayState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relays
}

// Voltage возвращает последнее заданное напряжение.
func (f *FakeController) Voltage() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voltage
}

// DropClients обрывает все открытые соединения.
func (f *FakeController) DropClients() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		_ = c.Close()
	}
	f.clients = nil
}

// Close останавливает имитацию.
func (f *FakeController) Close() {
	_ = f.ln.Close()
	f.DropClients()
}

func (f *FakeController) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns++
		f.clients = append(f.clients, conn)
		f.mu.Unlock()
		go f.handle(conn)
	}
}

func (f *FakeController) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req models.Request
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}

		resp, drop, hook := f.apply(req)
		if hook != nil {
			hook(req)
		}
		if drop {
			return
		}
		out, _ := json.Marshal(resp)
		if _, err := conn.Write(append(out, '\n')); err != nil {
			return
		}
	}
}

func (f *FakeController) apply(req models.Request) (models.Response, bool, func(models.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	hook := f.onRequest

	if n := f.drops[req.Command]; n > 0 {
		f.drops[req.Command] = n - 1
		return models.Response{}, true, hook
	}
	if msg, ok := f.failures[req.Command]; ok {
		return models.ErrorResult(msg), false, hook
	}

	ok := models.Response{Status: models.ResponseSuccess}
	switch req.Command {
	case models.CmdCheckConnection:
		ok.Message = f.ack
	case models.CmdSetRelays:
		state := req.State != nil && *req.State
		for _, i := range req.RelayIndices {
			if i < 0 || i >= models.RelayCount {
				return models.ErrorResult("invalid relay index"), false, hook
			}
			f.relays[i] = state
		}
	case models.CmdOpenRelay, models.CmdCloseRelay:
		if req.RelayNumber == nil || *req.RelayNumber < 0 || *req.RelayNumber >= models.RelayCount {
			return models.ErrorResult("invalid relay number"), false, hook
		}
		f.relays[*req.RelayNumber] = req.Command == models.CmdCloseRelay
	case models.CmdSetHipotVoltage:
		if req.Voltage != nil {
			f.voltage = *req.Voltage
		}
	case models.CmdReadCurrent:
		idx := f.reads
		if idx >= len(f.currents) {
			idx = len(f.currents) - 1
		}
		f.reads++
		v := f.currents[idx]
		ok.Current = &v
	case models.CmdGetSerialNumber:
		ok.SerialNumber = f.serial
	default:
		return models.ErrorResult("unknown command"), false, hook
	}
	return ok, false, hook
}
