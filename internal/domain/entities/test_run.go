package entities

import "time"

// TestRun - запись о прогоне испытаний одного изделия.
type TestRun struct {
	ID                       string             `gorm:"primaryKey;not null" json:"id"`
	SerialNumber             string             `gorm:"not null;index" json:"serial_number"`
	WorkOrderNumber          string             `gorm:"not null;index" json:"work_order_number"`
	LotHardenerNumber        string             `gorm:"not null" json:"lot_hardener_number"`
	LotMoldingCompoundNumber string             `gorm:"not null" json:"lot_molding_compound_number"`
	Outcome                  string             `gorm:"not null" json:"outcome"` // COMPLETED / STOPPED / ABORTED
	Passed                   bool               `json:"passed"`
	StartedAt                time.Time          `json:"started_at"`
	FinishedAt               time.Time          `json:"finished_at"`
	CreatedAt                time.Time          `json:"created_at"`
	Results                  []TestResultRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"results"`
}

// TestResultRecord - результат подтеста в рамках прогона.
type TestResultRecord struct {
	ID         uint     `gorm:"primaryKey" json:"-"`
	RunID      string   `gorm:"not null;index" json:"run_id"`
	TestNumber int      `gorm:"not null" json:"test_number"`
	Voltage    float64  `json:"voltage"`
	Current    *float64 `json:"current"` // мА
	Status     string   `gorm:"not null" json:"status"`
}
