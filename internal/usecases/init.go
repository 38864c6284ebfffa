package usecases

import (
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
)

// Deps - зависимости операторских сценариев
type Deps struct {
	Sequencer interfaces.Sequencer
	Relays    interfaces.RelayService
	Link      interfaces.HardwareLink
	Monitor   interfaces.ConnectionMonitor
	Prompt    interfaces.SerialPrompt
	Repo      interfaces.TestRunRepository
	Bus       *events.Bus
}

// NewUsecases - конструктор для UseCases
func NewUsecases(d Deps) interfaces.Usecases {
	return NewUsecase(d.Sequencer, d.Relays, d.Link, d.Monitor, d.Prompt, d.Repo, d.Bus)
}
