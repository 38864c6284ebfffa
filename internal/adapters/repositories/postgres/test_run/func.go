package test_run

import (
	"github.com/iwtcode/hipotService/internal/domain/entities"
	"gorm.io/gorm"
)

func orderedResults(db *gorm.DB) *gorm.DB {
	return db.Order("test_number ASC")
}

// Create сохраняет прогон вместе с результатами подтестов
func (r *TestRunRepositoryImpl) Create(run *entities.TestRun) error {
	return r.db.Create(run).Error
}

func (r *TestRunRepositoryImpl) GetByID(id string) (*entities.TestRun, error) {
	var run entities.TestRun
	err := r.db.Preload("Results", orderedResults).Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetBySerial возвращает прогоны изделия, новые первыми; limit <= 0 - без ограничения
func (r *TestRunRepositoryImpl) GetBySerial(serialNumber string, limit int) ([]entities.TestRun, error) {
	var runs []entities.TestRun
	q := r.db.Preload("Results", orderedResults).
		Where("serial_number = ?", serialNumber).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// List возвращает последние прогоны; limit <= 0 - без ограничения
func (r *TestRunRepositoryImpl) List(limit int) ([]entities.TestRun, error) {
	var runs []entities.TestRun
	q := r.db.Preload("Results", orderedResults).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
