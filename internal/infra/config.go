package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации консоли.
// Это статический bootstrap-конфиг процесса; пользовательские настройки
// (модели, порог оповещений, автолечение) живут отдельно в settings.Store.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Sync    SyncConfig    `mapstructure:"sync"`
	State   StateConfig   `mapstructure:"state"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig описывает настройки локального HTTP-сервера консоли.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig — адреса внешнего Sentinel-бэкенда.
type BackendConfig struct {
	// BaseURL — REST API (например, http://localhost:8000)
	BaseURL string `mapstructure:"base_url"`
	// StreamURL — push-канал атак (например, ws://localhost:8000/ws/attacks)
	StreamURL string `mapstructure:"stream_url"`
	// RequestTimeout — защитный таймаут одного HTTP-вызова
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SyncConfig — параметры цикла синхронизации.
// Интервалы фиксированные, без экспоненциального бэкоффа: предсказуемость
// поведения в демо важнее экономии переподключений.
type SyncConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	RecordCapacity int           `mapstructure:"record_capacity"`
}

// StateConfig — куда складываем локальное состояние клиента.
// Единственное, что переживает перезапуск — файл пользовательских настроек.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Переменные окружения: BACKEND_BASE_URL перекроет backend.base_url
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла. Если файла нет — работаем на ENV и дефолтах.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.stream_url", "ws://localhost:8000/ws/attacks")
	v.SetDefault("backend.request_timeout", 15*time.Second)

	v.SetDefault("sync.poll_interval", 3*time.Second)
	v.SetDefault("sync.reconnect_delay", 3*time.Second)
	v.SetDefault("sync.record_capacity", 50)

	v.SetDefault("state.dir", ".")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
