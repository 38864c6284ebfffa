package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/iwtcode/hipotService/internal/domain/models"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
)

// Controller - единый контракт управления банком из 8 реле.
type Controller interface {
	Name() string
	SetRelays(ctx context.Context, indices []int, closed bool) error
	AllOn(ctx context.Context) error
	AllOff(ctx context.Context) error
	State() models.RelayState
}

// Строковые значения состояния реле.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// ParseState приводит состояние к bool: true/"closed" - замкнуто, false/"open" - разомкнуто.
func ParseState(state interface{}) (bool, error) {
	switch v := state.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case StateOpen:
			return false, nil
		case StateClosed:
			return true, nil
		}
	}
	return false, apperrors.NewValidationError("state", state, "state must be 'open' or 'closed'")
}

// ValidateIndices проверяет, что все индексы лежат в [0,7].
func ValidateIndices(indices []int) error {
	if len(indices) == 0 {
		return apperrors.NewValidationError("relay_indices", indices, "at least one relay index is required")
	}
	for _, i := range indices {
		if i < 0 || i >= models.RelayCount {
			return apperrors.NewValidationError("relay_indices", i,
				fmt.Sprintf("relay indices must be integers between 0 and %d", models.RelayCount-1))
		}
	}
	return nil
}

func allIndices() []int {
	out := make([]int, models.RelayCount)
	for i := range out {
		out[i] = i
	}
	return out
}
