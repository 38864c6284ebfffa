package relay

import (
	"context"
	"sync"

	"github.com/iwtcode/hipotService/internal/domain/models"
)

// RelayLink - часть клиента контроллера, нужная удаленному банку.
type RelayLink interface {
	SetRelays(ctx context.Context, indices []int, state bool) error
}

// RemoteBank - электромеханические реле на удаленном контроллере.
type RemoteBank struct {
	mu    sync.Mutex
	link  RelayLink
	state models.RelayState
}

func NewRemoteBank(link RelayLink) *RemoteBank {
	return &RemoteBank{link: link}
}

func (b *RemoteBank) Name() string { return models.RelayElectromechanical }

// SetRelays отправляет команду set_relays; локальное зеркало обновляется только после успеха.
func (b *RemoteBank) SetRelays(ctx context.Context, indices []int, closed bool) error {
	if err := ValidateIndices(indices); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.link.SetRelays(ctx, indices, closed); err != nil {
		return err
	}
	for _, i := range indices {
		b.state[i] = closed
	}
	return nil
}

func (b *RemoteBank) AllOn(ctx context.Context) error {
	return b.SetRelays(ctx, allIndices(), true)
}

func (b *RemoteBank) AllOff(ctx context.Context) error {
	return b.SetRelays(ctx, allIndices(), false)
}

func (b *RemoteBank) State() models.RelayState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
