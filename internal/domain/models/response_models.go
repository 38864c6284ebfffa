package models

// ErrorResponse представляет стандартный ответ с ошибкой.
type ErrorResponse struct {
	Status string `json:"status" example:"error"`
	Error  struct {
		Code    int    `json:"code" example:"409"`
		Message string `json:"message" example:"test already running"`
	} `json:"error"`
}

// MessageResponse представляет стандартный успешный ответ с сообщением.
type MessageResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Test started"`
}

// RelaySelectionRequest - выбор релейного модуля по умолчанию.
type RelaySelectionRequest struct {
	SelectedRelay string `json:"selected_relay" binding:"required"`
}

// SetRelaysRequest - ручное управление реле. State: true/false или "open"/"closed".
type SetRelaysRequest struct {
	Relays    []int       `json:"relays" binding:"required"`
	State     interface{} `json:"state" binding:"required"`
	TimeoutMs int         `json:"timeout_ms"`
}

// SetVoltageRequest - ручная установка напряжения hi-pot источника.
type SetVoltageRequest struct {
	Voltage *float64 `json:"voltage" binding:"required"`
}

// SerialNumberRequest - ответ оператора на запрос серийного номера.
type SerialNumberRequest struct {
	SerialNumber string `json:"serial_number" binding:"required"`
}

// ConnectionStatusResponse - результат проверки связи с контроллером.
type ConnectionStatusResponse struct {
	Status    string `json:"status" example:"healthy"`
	Connected bool   `json:"connected"`
	LinkState string `json:"link_state"`
}
