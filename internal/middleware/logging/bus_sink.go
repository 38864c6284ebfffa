package logging

import (
	"github.com/iwtcode/hipotService/internal/events"
)

// BusSink дублирует сообщения журнала оператора (log_event) в файловый лог.
type BusSink struct {
	bus *events.Bus
	sub events.Subscription
}

func NewBusSink(bus *events.Bus, logger *Logger) *BusSink {
	l := logger.WithPrefix("OPERATOR")
	return &BusSink{
		bus: bus,
		sub: events.On(bus, func(ev events.LogMessage) {
			switch ev.Level {
			case events.LevelDebug:
				l.Debug(ev.Message)
			case events.LevelWarning:
				l.Warn(ev.Message)
			case events.LevelError:
				l.Error(ev.Message)
			default:
				l.Info(ev.Message)
			}
		}),
	}
}

func (s *BusSink) Close() {
	s.bus.Unsubscribe(s.sub)
}
