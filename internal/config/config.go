package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig содержит конфигурацию приложения
type AppConfig struct {
	ServerPort string
	GinMode    string
	Hipot      HipotConfig
	Relay      RelayConfig
	Test       TestConfig
	Serial     SerialConfig
	Kafka      KafkaConfig
	Database   DatabaseConfig
	Logging    LoggerConfig
}

// HipotConfig содержит параметры связи с удаленным контроллером реле и hi-pot источника
type HipotConfig struct {
	Host            string
	Port            string
	Timeout         time.Duration
	ConnectionAck   string
	MonitorInterval time.Duration // 0 - фоновая проверка связи отключена
}

// Address возвращает адрес контроллера в формате host:port.
func (h HipotConfig) Address() string {
	return h.Host + ":" + h.Port
}

// RelayConfig содержит настройки релейного модуля
type RelayConfig struct {
	Default       string // "Electromechanical" или "Solid State"
	SafetyTimeout time.Duration
	AllOffOnStop  bool
}

// TestConfig содержит параметры последовательности испытаний
type TestConfig struct {
	Runtime       time.Duration // время выдержки перед измерением тока
	Pause         time.Duration // пауза между подтестами
	CurrentCutOff float64       // мА, включительно
	VoltageLow    float64
	VoltageHigh   float64
}

// SerialConfig определяет источник серийного номера изделия
type SerialConfig struct {
	Source  string // "operator" или "hardware"
	Timeout time.Duration
}

// KafkaConfig содержит настройки продюсера результатов
type KafkaConfig struct {
	Enable bool
	Broker string
	Topic  string
}

// LoggerConfig содержит настройки логгера
type LoggerConfig struct {
	Enable     bool
	LogsDir    string
	Level      string
	SavingDays int
}

// DatabaseConfig содержит конфигурацию для подключения к базе данных
type DatabaseConfig struct {
	Enable   bool
	Host     string
	Port     string
	Username string
	Password string
	DBName   string
}

// LoadConfiguration загружает конфигурацию из .env файла или переменных окружения
func LoadConfiguration() (*AppConfig, error) {
	_ = godotenv.Load()

	config := &AppConfig{
		ServerPort: getEnv("APP_PORT", "8083"),
		GinMode:    getEnv("GIN_MODE", "debug"),
		Hipot: HipotConfig{
			Host:            getEnv("HIPOT_HOST", "192.168.0.2"),
			Port:            getEnv("HIPOT_PORT", "65432"),
			Timeout:         getEnvAsMillis("HIPOT_TIMEOUT_MS", 5*time.Second),
			ConnectionAck:   getEnv("HIPOT_CONNECTION_ACK", "Connection OK"),
			MonitorInterval: getEnvAsMillis("HIPOT_MONITOR_INTERVAL_MS", 0),
		},
		Relay: RelayConfig{
			Default:       getEnv("RELAY_DEFAULT", "Electromechanical"),
			SafetyTimeout: getEnvAsMillis("RELAY_SAFETY_TIMEOUT_MS", 10*time.Second),
			AllOffOnStop:  getEnvAsBool("HIPOT_ALL_OFF_ON_STOP", false),
		},
		Test: TestConfig{
			Runtime:       getEnvAsMillis("TEST_RUNTIME_MS", 1500*time.Millisecond),
			Pause:         getEnvAsMillis("TEST_PAUSE_MS", 1*time.Second),
			CurrentCutOff: getEnvAsFloat("TEST_CURRENT_CUT_OFF", 5.2),
			VoltageLow:    getEnvAsFloat("TEST_VOLTAGE_LOW", 500),
			VoltageHigh:   getEnvAsFloat("TEST_VOLTAGE_HIGH", 1600),
		},
		Serial: SerialConfig{
			Source:  getEnv("SERIAL_SOURCE", "operator"),
			Timeout: getEnvAsMillis("SERIAL_TIMEOUT_MS", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Enable: getEnvAsBool("KAFKA_ENABLE", false),
			Broker: getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:  getEnv("KAFKA_TOPIC", "hipot_results"),
		},
		Database: DatabaseConfig{
			Enable:   getEnvAsBool("DB_ENABLE", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Username: getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "root"),
			DBName:   getEnv("DB_NAME", "hipot_db"),
		},
		Logging: LoggerConfig{
			Enable:     getEnvAsBool("LOGGER_ENABLE", true),
			LogsDir:    getEnv("LOGGER_LOGS_DIR", "./logs"),
			Level:      getEnv("LOGGER_LOG_LEVEL", "DEBUG"),
			SavingDays: getEnvAsInt("LOGGER_SAVING_DAYS", 7),
		},
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	valueStr := getEnv(name, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsMillis читает значение в миллисекундах
func getEnvAsMillis(name string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value >= 0 {
		return time.Duration(value) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return val
}
