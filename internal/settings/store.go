package settings

/*
Пакет settings хранит пользовательские настройки консоли — единственное
локальное состояние, переживающее перезапуск клиента.

Контракт чтения: потребители держат ссылку на *Store и читают значение
в момент использования (Current/AutoHeal), а не копию, захваченную при
планировании асинхронной операции. Настройки могут поменяться, пока
запрос в полете — должен применяться актуальный вариант.
*/

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"go.uber.org/zap"
)

// FileName — фиксированное имя файла настроек в каталоге состояния
const FileName = "sentinel_settings.json"

// AlertThreshold — минимальный уровень опасности, с которого шлем оповещение
type AlertThreshold string

const (
	ThresholdMedium   AlertThreshold = "medium"
	ThresholdHigh     AlertThreshold = "high"
	ThresholdCritical AlertThreshold = "critical"
)

func (t AlertThreshold) valid() bool {
	return t == ThresholdMedium || t == ThresholdHigh || t == ThresholdCritical
}

// Settings — регулируемые пользователем параметры
type Settings struct {
	OllamaURL      string         `mapstructure:"ollama_url" json:"ollama_url"`
	BastionModel   string         `mapstructure:"bastion_model" json:"bastion_model"`
	AuditorModel   string         `mapstructure:"auditor_model" json:"auditor_model"`
	AlertThreshold AlertThreshold `mapstructure:"alert_threshold" json:"alert_threshold"`
	AutoHeal       bool           `mapstructure:"auto_heal" json:"auto_heal"`
}

// Defaults — значения первого запуска
func Defaults() Settings {
	return Settings{
		OllamaURL:      "http://127.0.0.1:11434",
		BastionModel:   "deepseek-r1:8b",
		AuditorModel:   "shieldgemma:2b",
		AlertThreshold: ThresholdHigh,
		AutoHeal:       false,
	}
}

// retiredModels — миграция вперед: сохраненный конфиг может ссылаться на
// снятые с поддержки идентификаторы моделей. При загрузке подменяем и
// сразу персистим исправленный вариант.
var retiredModels = map[string]string{
	"llama3:8b":           "llama3.1:8b",
	"deepseek-r1:7b":      "deepseek-r1:8b",
	"shieldgemma:2b-q4_0": "shieldgemma:2b",
}

// Store — потокобезопасное хранилище настроек поверх JSON-файла
type Store struct {
	mu      sync.RWMutex
	current Settings

	path   string
	logger *zap.Logger
}

// Load читает настройки из каталога состояния. Отсутствующий файл — не
// ошибка: создаем дефолты и сохраняем их.
func Load(stateDir string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   filepath.Join(stateDir, FileName),
		logger: logger.Named("settings"),
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("settings: failed to read %s: %w", s.path, err)
		}
		// Первый запуск: файла еще нет
		s.current = Defaults()
		if err := s.persist(s.current); err != nil {
			return nil, err
		}
		s.logger.Info("settings file created with defaults", zap.String("path", s.path))
		return s, nil
	}

	var loaded Settings
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("settings: failed to decode %s: %w", s.path, err)
	}

	// Миграция снятых моделей
	if migrated := migrate(&loaded); migrated {
		if err := s.persist(loaded); err != nil {
			return nil, err
		}
		s.logger.Info("settings migrated to current model identifiers",
			zap.String("bastion", loaded.BastionModel),
			zap.String("auditor", loaded.AuditorModel))
	}

	if !loaded.AlertThreshold.valid() {
		loaded.AlertThreshold = Defaults().AlertThreshold
	}

	s.current = loaded
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("ollama_url", d.OllamaURL)
	v.SetDefault("bastion_model", d.BastionModel)
	v.SetDefault("auditor_model", d.AuditorModel)
	v.SetDefault("alert_threshold", string(d.AlertThreshold))
	v.SetDefault("auto_heal", d.AutoHeal)
}

func migrate(s *Settings) bool {
	changed := false
	if next, ok := retiredModels[s.BastionModel]; ok {
		s.BastionModel = next
		changed = true
	}
	if next, ok := retiredModels[s.AuditorModel]; ok {
		s.AuditorModel = next
		changed = true
	}
	return changed
}

// Save валидирует и персистит новые настройки целиком
func (s *Store) Save(next Settings) error {
	if !next.AlertThreshold.valid() {
		return fmt.Errorf("settings: invalid alert threshold %q", next.AlertThreshold)
	}
	if next.OllamaURL == "" || next.BastionModel == "" || next.AuditorModel == "" {
		return errors.New("settings: endpoint and model identifiers must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(next); err != nil {
		return err
	}
	s.current = next

	s.logger.Info("settings saved",
		zap.Bool("auto_heal", next.AutoHeal),
		zap.String("alert_threshold", string(next.AlertThreshold)))
	return nil
}

func (s *Store) persist(val Settings) error {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.Set("ollama_url", val.OllamaURL)
	v.Set("bastion_model", val.BastionModel)
	v.Set("auditor_model", val.AuditorModel)
	v.Set("alert_threshold", string(val.AlertThreshold))
	v.Set("auto_heal", val.AutoHeal)

	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("settings: failed to write %s: %w", s.path, err)
	}
	return nil
}

// Current возвращает актуальный снимок настроек
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AutoHeal — live-чтение тумблера автолечения в момент принятия решения
func (s *Store) AutoHeal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AutoHeal
}

// Threshold — live-чтение порога оповещений
func (s *Store) Threshold() AlertThreshold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AlertThreshold
}

// AlertRank — порог в числовом виде для сравнения с Severity.Rank().
// Имена порогов совпадают с именами уровней опасности.
func (s *Store) AlertRank() int {
	return domain.Severity(s.Threshold()).Rank()
}
