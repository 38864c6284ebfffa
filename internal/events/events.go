package events

import (
	"time"

	"github.com/iwtcode/hipotService/internal/domain/models"
)

// Topic - тема шины событий. Набор тем закрыт.
type Topic string

const (
	// core -> UI
	TopicLog               Topic = "log_event"
	TopicTestStarted       Topic = "test_started"
	TopicSubTestStarted    Topic = "sub_test_started"
	TopicSubTestConcluded  Topic = "sub_test_concluded"
	TopicProgressUpdate    Topic = "progress_update"
	TopicSerialConfirmed   Topic = "serial_number_confirmed"
	TopicTestTerminated    Topic = "test_terminated"
	TopicConnectionStatus  Topic = "connection_status"
	TopicRelayStateChanged Topic = "relay_state_changed"

	// UI -> core
	TopicBatchInfoConfirmed   Topic = "batch_info_confirmed"
	TopicBatchInfoCleared     Topic = "batch_info_cleared"
	TopicDefaultRelaySelected Topic = "default_relay_selected"
	TopicSetHipotVoltage      Topic = "set_hipot_voltage"
	TopicSetRelays            Topic = "set_relays"
	TopicVerifyConnection     Topic = "verify_raspberry_pi_connection"
)

// Event - полезная нагрузка одной темы. Реализуется только типами этого пакета.
type Event interface {
	Topic() Topic
	isEvent()
}

// LogLevel - уровень сообщения журнала для оператора.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

type LogMessage struct {
	Message string   `json:"message"`
	Level   LogLevel `json:"level"`
}

type TestStarted struct {
	TestName string `json:"test_name"`
}

type SubTestStarted struct {
	TestNumber int     `json:"test_number"`
	Voltage    float64 `json:"voltage"`
}

type SubTestConcluded struct {
	TestNumber int               `json:"test_number"`
	Status     models.TestStatus `json:"status"`
	Current    *float64          `json:"current"`
}

type ProgressUpdate struct {
	Position int `json:"position"`
}

type SerialNumberConfirmed struct {
	SerialNumber string `json:"serial_number"`
}

type TestTerminated struct {
	Outcome models.Outcome `json:"outcome"`
}

type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	LinkState string `json:"link_state"`
}

type RelayStateChanged struct {
	Controller string            `json:"controller"`
	State      models.RelayState `json:"state"`
}

type BatchInfoConfirmed struct {
	BatchInfo models.BatchInfo `json:"batch_info"`
}

type BatchInfoCleared struct{}

type DefaultRelaySelected struct {
	SelectedRelay string `json:"selected_relay"`
}

type SetHipotVoltage struct {
	Voltage float64 `json:"voltage"`
}

// SetRelays - ручная команда реле. State: bool либо "open"/"closed".
// Timeout > 0 включает таймер безопасности для замыкаемых реле.
type SetRelays struct {
	Relays  []int         `json:"relays"`
	Timeout time.Duration `json:"timeout"`
	State   interface{}   `json:"state"`
}

type VerifyConnection struct{}

func (LogMessage) Topic() Topic            { return TopicLog }
func (TestStarted) Topic() Topic           { return TopicTestStarted }
func (SubTestStarted) Topic() Topic        { return TopicSubTestStarted }
func (SubTestConcluded) Topic() Topic      { return TopicSubTestConcluded }
func (ProgressUpdate) Topic() Topic        { return TopicProgressUpdate }
func (SerialNumberConfirmed) Topic() Topic { return TopicSerialConfirmed }
func (TestTerminated) Topic() Topic        { return TopicTestTerminated }
func (ConnectionStatus) Topic() Topic      { return TopicConnectionStatus }
func (RelayStateChanged) Topic() Topic     { return TopicRelayStateChanged }
func (BatchInfoConfirmed) Topic() Topic    { return TopicBatchInfoConfirmed }
func (BatchInfoCleared) Topic() Topic      { return TopicBatchInfoCleared }
func (DefaultRelaySelected) Topic() Topic  { return TopicDefaultRelaySelected }
func (SetHipotVoltage) Topic() Topic       { return TopicSetHipotVoltage }
func (SetRelays) Topic() Topic             { return TopicSetRelays }
func (VerifyConnection) Topic() Topic      { return TopicVerifyConnection }

func (LogMessage) isEvent()            {}
func (TestStarted) isEvent()           {}
func (SubTestStarted) isEvent()        {}
func (SubTestConcluded) isEvent()      {}
func (ProgressUpdate) isEvent()        {}
func (SerialNumberConfirmed) isEvent() {}
func (TestTerminated) isEvent()        {}
func (ConnectionStatus) isEvent()      {}
func (RelayStateChanged) isEvent()     {}
func (BatchInfoConfirmed) isEvent()    {}
func (BatchInfoCleared) isEvent()      {}
func (DefaultRelaySelected) isEvent()  {}
func (SetHipotVoltage) isEvent()       {}
func (SetRelays) isEvent()             {}
func (VerifyConnection) isEvent()      {}

// CoreTopics - темы, которые ядро публикует для UI.
var CoreTopics = []Topic{
	TopicLog,
	TopicTestStarted,
	TopicSubTestStarted,
	TopicSubTestConcluded,
	TopicProgressUpdate,
	TopicSerialConfirmed,
	TopicTestTerminated,
	TopicConnectionStatus,
	TopicRelayStateChanged,
}
