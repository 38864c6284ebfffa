package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/iwtcode/hipotService/internal/adapters/handlers"
	"github.com/iwtcode/hipotService/internal/adapters/repositories/postgres"
	"github.com/iwtcode/hipotService/internal/config"
	"github.com/iwtcode/hipotService/internal/domain/models"
	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	"github.com/iwtcode/hipotService/internal/services/hardware"
	"github.com/iwtcode/hipotService/internal/services/kafka"
	"github.com/iwtcode/hipotService/internal/services/monitor"
	"github.com/iwtcode/hipotService/internal/services/relay"
	"github.com/iwtcode/hipotService/internal/services/results"
	"github.com/iwtcode/hipotService/internal/services/safety"
	"github.com/iwtcode/hipotService/internal/services/sequencer"
	"github.com/iwtcode/hipotService/internal/services/serial"
	"github.com/iwtcode/hipotService/internal/usecases"

	"go.uber.org/fx"
)

// New создает новый экземпляр fx.App
func New() *fx.App {
	return fx.New(
		ConfigModule,
		LoggingModule,
		EventBusModule,
		RepositoryModule,
		ProducerModule,
		HardwareModule,
		ServiceModule,
		UsecaseModule,
		HttpServerModule,
		// Invoke-функции для запуска фоновых задач и хуков жизненного цикла
		fx.Invoke(InvokeHardwareLifecycle),
		fx.Invoke(InvokeEventRouter),
	)
}

// --- Модули FX ---

var ConfigModule = fx.Module("config_module",
	fx.Provide(config.LoadConfiguration),
)

func ProvideLogger(cfg *config.AppConfig) *logging.Logger {
	loggerCfg := &logging.Config{
		Enabled:    cfg.Logging.Enable,
		Level:      cfg.Logging.Level,
		LogsDir:    cfg.Logging.LogsDir,
		SavingDays: uint(cfg.Logging.SavingDays),
	}
	return logging.NewLogger(loggerCfg, "HipotServiceApp")
}

var LoggingModule = fx.Module("logging_module",
	fx.Provide(ProvideLogger),
)

var EventBusModule = fx.Module("event_bus_module",
	fx.Provide(
		events.New,
		logging.NewBusSink,
	),
)

var RepositoryModule = fx.Module("repository_module",
	fx.Provide(postgres.NewRepository),
)

var ProducerModule = fx.Module("producer_module",
	fx.Provide(kafka.NewKafkaProducer),
)

func ProvideLink(cfg *config.AppConfig, bus *events.Bus, logger *logging.Logger) *hardware.Link {
	return hardware.NewLink(hardware.Config{
		Address:       cfg.Hipot.Address(),
		Timeout:       cfg.Hipot.Timeout,
		ConnectionAck: cfg.Hipot.ConnectionAck,
	}, nil, bus, logger)
}

// ProvideLocalBank создает резервный банк. Привязка к плате ввода-вывода не входит в сервис,
// поэтому линии ведутся в памяти.
func ProvideLocalBank(logger *logging.Logger) *relay.LocalBank {
	logger.Warn("Solid State relay bank uses in-memory outputs")
	return relay.NewLocalBank(relay.NewMemoryOutput())
}

func ProvideRelayManager(cfg *config.AppConfig, link *hardware.Link, local *relay.LocalBank, timers *safety.Bank, bus *events.Bus, logger *logging.Logger) (*relay.Manager, error) {
	return relay.NewManager(relay.NewRemoteBank(link), local, cfg.Relay.Default, timers, bus, logger)
}

var HardwareModule = fx.Module("hardware_module",
	fx.Provide(
		ProvideLink,
		safety.NewBank,
		ProvideLocalBank,
		ProvideRelayManager,
	),
)

// SerialSources - источник серийного номера для секвенсора и, для ввода оператором, сам запрос.
type SerialSources struct {
	fx.Out

	Source sequencer.SerialSource
	Prompt interfaces.SerialPrompt
}

func ProvideSerialSources(cfg *config.AppConfig, link *hardware.Link, bus *events.Bus, logger *logging.Logger) (SerialSources, error) {
	switch cfg.Serial.Source {
	case serial.SourceOperator:
		prompt := serial.NewPrompt(cfg.Serial.Timeout, bus, logger)
		return SerialSources{Source: prompt, Prompt: prompt}, nil
	case serial.SourceHardware:
		// Prompt остается nil-интерфейсом: ввод оператором отключен
		return SerialSources{Source: serial.NewDevice(link, cfg.Serial.Timeout, logger)}, nil
	default:
		return SerialSources{}, errors.New("unknown SERIAL_SOURCE: " + cfg.Serial.Source)
	}
}

func ProvideSink(repo interfaces.TestRunRepository, producer interfaces.KafkaService, bus *events.Bus, logger *logging.Logger) sequencer.ResultsSink {
	return results.NewSink(repo, producer, bus, logger)
}

func ProvideSequencer(cfg *config.AppConfig, link *hardware.Link, relays *relay.Manager, serials sequencer.SerialSource, sink sequencer.ResultsSink, bus *events.Bus, logger *logging.Logger) *sequencer.Sequencer {
	return sequencer.NewSequencer(sequencer.Config{
		Plan:  models.DefaultPlan(cfg.Test.VoltageLow, cfg.Test.VoltageHigh),
		Pause: cfg.Test.Pause,
		Unit: sequencer.UnitConfig{
			Runtime:       cfg.Test.Runtime,
			SafetyTimeout: cfg.Relay.SafetyTimeout,
			CurrentCutOff: cfg.Test.CurrentCutOff,
		},
		AllOffOnStop: cfg.Relay.AllOffOnStop,
	}, link, relays, serials, sink, bus, logger)
}

func ProvideMonitor(link *hardware.Link, seq *sequencer.Sequencer, bus *events.Bus, logger *logging.Logger) *monitor.Monitor {
	return monitor.NewMonitor(link, seq.Busy, bus, logger)
}

var ServiceModule = fx.Module("service_module",
	fx.Provide(
		ProvideSerialSources,
		ProvideSink,
		ProvideSequencer,
		ProvideMonitor,
	),
)

func ProvideUsecases(
	seq *sequencer.Sequencer,
	relays *relay.Manager,
	link *hardware.Link,
	mon *monitor.Monitor,
	prompt interfaces.SerialPrompt,
	repo interfaces.TestRunRepository,
	bus *events.Bus,
) interfaces.Usecases {
	return usecases.NewUsecases(usecases.Deps{
		Sequencer: seq,
		Relays:    relays,
		Link:      link,
		Monitor:   mon,
		Prompt:    prompt,
		Repo:      repo,
		Bus:       bus,
	})
}

var UsecaseModule = fx.Module("usecases_module",
	fx.Provide(
		ProvideUsecases,
		usecases.NewEventRouter,
	),
)

var HttpServerModule = fx.Module("http_server_module",
	fx.Provide(
		handlers.NewHandler,
		handlers.ProvideRouter,
	),
	fx.Invoke(InvokeHttpServer),
)

// HardwareParams - компоненты, которыми управляет жизненный цикл приложения.
type HardwareParams struct {
	fx.In

	Cfg       *config.AppConfig
	Link      *hardware.Link
	Timers    *safety.Bank
	Local     *relay.LocalBank
	Relays    *relay.Manager
	Sequencer *sequencer.Sequencer
	Monitor   *monitor.Monitor
	Producer  interfaces.KafkaService
	Logger    *logging.Logger
}

// InvokeHardwareLifecycle запускает опрос связи и при остановке переводит стенд в безопасное состояние.
func InvokeHardwareLifecycle(lc fx.Lifecycle, p HardwareParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("Hi-pot controller configured", "address", p.Cfg.Hipot.Address(), "relay", p.Relays.ActiveName())
			if p.Cfg.Hipot.MonitorInterval > 0 {
				if err := p.Monitor.Start(p.Cfg.Hipot.MonitorInterval); err != nil {
					p.Logger.Warn("Failed to start connection polling", "error", err)
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("Shutting down test stand...")
			p.Monitor.Stop()
			p.Sequencer.Close()

			var errs []error
			if err := p.Relays.Shutdown(ctx); err != nil {
				p.Logger.Error("Failed to open relays on shutdown", "error", err)
				errs = append(errs, err)
			}
			p.Timers.Close()
			errs = append(errs, p.Local.Close(), p.Link.Close())
			if p.Producer != nil {
				errs = append(errs, p.Producer.Close())
			}
			return errors.Join(errs...)
		},
	})
}

// InvokeEventRouter подключает команды оператора из шины к сценариям, а журнал оператора к логу.
func InvokeEventRouter(lc fx.Lifecycle, router *usecases.EventRouter, sink *logging.BusSink) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			router.Close()
			sink.Close()
			return nil
		},
	})
}

// InvokeHttpServer запускает HTTP-сервер.
func InvokeHttpServer(lc fx.Lifecycle, cfg *config.AppConfig, h http.Handler, logger *logging.Logger) {
	serverAddr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     h,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout не задан: /events держит долгоживущее WebSocket-соединение
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("HTTP Server is starting", "address", serverAddr)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Failed to start server", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}
