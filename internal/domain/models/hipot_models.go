package models

import (
	"strings"
	"time"
)

// RelayCount - количество реле в банке (индексы 0..7).
const RelayCount = 8

// Значения выбора релейного модуля.
const (
	RelayElectromechanical = "Electromechanical"
	RelaySolidState        = "Solid State"
)

// BatchInfo содержит информацию о партии, подтвержденную оператором.
type BatchInfo struct {
	WorkOrderNumber          string `json:"work_order_number" binding:"required"`
	LotHardenerNumber        string `json:"lot_hardener_number" binding:"required"`
	LotMoldingCompoundNumber string `json:"lot_molding_compound_number" binding:"required"`
}

// Complete сообщает, заполнены ли все поля.
func (b BatchInfo) Complete() bool {
	return strings.TrimSpace(b.WorkOrderNumber) != "" &&
		strings.TrimSpace(b.LotHardenerNumber) != "" &&
		strings.TrimSpace(b.LotMoldingCompoundNumber) != ""
}

// SubTestSpec описывает один шаг измерения.
type SubTestSpec struct {
	TestNumber int     `json:"test_number"`
	Voltage    float64 `json:"voltage"`
	Relays     []int   `json:"relays"`
}

// DefaultPlan возвращает фиксированный план из шести подтестов на двух уровнях напряжения.
func DefaultPlan(low, high float64) []SubTestSpec {
	pairs := [][]int{{0, 1}, {2, 3}, {4, 5}}
	plan := make([]SubTestSpec, 0, 6)
	for i, v := range []float64{low, high} {
		for j, relays := range pairs {
			plan = append(plan, SubTestSpec{
				TestNumber: i*len(pairs) + j + 1,
				Voltage:    v,
				Relays:     append([]int(nil), relays...),
			})
		}
	}
	return plan
}

// TestStatus - итог подтеста.
type TestStatus string

const (
	StatusPending TestStatus = "PENDING"
	StatusRunning TestStatus = "RUNNING"
	StatusSuccess TestStatus = "SUCCESS"
	StatusFailure TestStatus = "FAILURE"
	StatusError   TestStatus = "ERROR"
)

// Terminal сообщает, является ли статус конечным.
func (s TestStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusError
}

// SubTestResult - неизменяемый результат подтеста.
type SubTestResult struct {
	TestNumber int        `json:"test_number"`
	Voltage    float64    `json:"voltage"`
	Current    *float64   `json:"current,omitempty"` // мА
	Status     TestStatus `json:"status"`
}

// RelayState - состояние банка реле, true = замкнуто (под напряжением).
type RelayState [RelayCount]bool

// Phase - фаза секвенсора.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseAwaitingSerial Phase = "AWAITING_SERIAL"
	PhaseRunning        Phase = "RUNNING"
)

// Outcome - итог прогона.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeStopped   Outcome = "STOPPED"
	OutcomeAborted   Outcome = "ABORTED"
)

// RunStatus - снимок состояния секвенсора для API.
type RunStatus struct {
	Phase        Phase           `json:"phase"`
	IsRunning    bool            `json:"is_running"`
	SerialNumber string          `json:"serial_number,omitempty"`
	Position     int             `json:"position"`
	LastOutcome  Outcome         `json:"last_outcome,omitempty"`
	Results      []SubTestResult `json:"results"`
	ActiveRelay  string          `json:"active_relay"`
	LinkState    string          `json:"link_state"`
	Relays       RelayState      `json:"relays"`
}

// RunReport - итог завершенного прогона, передаваемый на выгрузку.
type RunReport struct {
	SerialNumber string          `json:"serial_number"`
	BatchInfo    BatchInfo       `json:"batch_info"`
	Outcome      Outcome         `json:"outcome"`
	Results      []SubTestResult `json:"results"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// Passed сообщает, что прогон завершен и все подтесты успешны.
func (r RunReport) Passed() bool {
	if r.Outcome != OutcomeCompleted || len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			return false
		}
	}
	return true
}
