package models

// Команды контроллера hi-pot/реле.
const (
	CmdCheckConnection = "check_connection"
	CmdOpenRelay       = "open_relay"
	CmdCloseRelay      = "close_relay"
	CmdSetRelays       = "set_relays"
	CmdSetHipotVoltage = "set_hipot_voltage"
	CmdReadCurrent     = "read_current"
	CmdGetSerialNumber = "get_serial_number"
)

// Статусы ответа контроллера.
const (
	ResponseSuccess = "success"
	ResponseError   = "error"
)

// Request - запрос к контроллеру. Передается как одна строка JSON.
type Request struct {
	Command      string   `json:"command"`
	RelayIndices []int    `json:"relay_indices,omitempty"`
	RelayNumber  *int     `json:"relay_number,omitempty"`
	State        *bool    `json:"state,omitempty"`
	Voltage      *float64 `json:"voltage,omitempty"`
}

// Response - ответ контроллера.
type Response struct {
	Status       string   `json:"status"`
	Message      string   `json:"message,omitempty"`
	Current      *float64 `json:"current,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
}

// OK сообщает об успешном статусе ответа.
func (r Response) OK() bool {
	return r.Status == ResponseSuccess
}

// ErrorResult формирует структурированный ответ с ошибкой.
func ErrorResult(message string) Response {
	return Response{Status: ResponseError, Message: message}
}
