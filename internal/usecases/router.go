package usecases

import (
	"context"

	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
)

// EventRouter исполняет команды оператора, пришедшие через шину событий.
// Ошибки не возвращаются, а публикуются как сообщения журнала.
type EventRouter struct {
	uc     interfaces.Usecases
	bus    *events.Bus
	logger *logging.Logger
	subs   []events.Subscription
}

func NewEventRouter(uc interfaces.Usecases, bus *events.Bus, logger *logging.Logger) *EventRouter {
	r := &EventRouter{uc: uc, bus: bus, logger: logger.WithPrefix("ROUTER")}
	r.subs = []events.Subscription{
		events.On(bus, r.onDefaultRelaySelected),
		events.On(bus, r.onSetHipotVoltage),
		events.On(bus, r.onSetRelays),
		events.On(bus, r.onVerifyConnection),
	}
	return r
}

func (r *EventRouter) report(action string, err error) {
	if err == nil {
		return
	}
	r.logger.Error("Operator command failed", "action", action, "error", err)
	r.bus.Logf(events.LevelError, "Failed to %s: %v", action, err)
}

func (r *EventRouter) onDefaultRelaySelected(ev events.DefaultRelaySelected) {
	r.report("select relay module", r.uc.SelectDefaultRelay(ev.SelectedRelay))
}

func (r *EventRouter) onSetHipotVoltage(ev events.SetHipotVoltage) {
	r.report("set hi-pot voltage", r.uc.SetHipotVoltage(context.Background(), ev.Voltage))
}

func (r *EventRouter) onSetRelays(ev events.SetRelays) {
	req := models.SetRelaysRequest{
		Relays:    ev.Relays,
		State:     ev.State,
		TimeoutMs: int(ev.Timeout.Milliseconds()),
	}
	r.report("set relays", r.uc.SetRelays(context.Background(), req))
}

func (r *EventRouter) onVerifyConnection(events.VerifyConnection) {
	r.uc.VerifyConnection(context.Background())
}

// Close отписывает маршрутизатор от шины.
func (r *EventRouter) Close() {
	for _, s := range r.subs {
		r.bus.Unsubscribe(s)
	}
}
