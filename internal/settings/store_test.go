package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFirstRunCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, Defaults(), s.Current())

	// Файл должен появиться на диске
	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err)
}

func TestSavePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, zap.NewNop())
	require.NoError(t, err)

	next := s.Current()
	next.AutoHeal = true
	next.AlertThreshold = ThresholdCritical
	next.OllamaURL = "http://10.0.0.5:11434"
	require.NoError(t, s.Save(next))

	// "Перезапуск": загружаем заново из того же каталога
	reloaded, err := Load(dir, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, reloaded.AutoHeal())
	assert.Equal(t, ThresholdCritical, reloaded.Threshold())
	assert.Equal(t, "http://10.0.0.5:11434", reloaded.Current().OllamaURL)
}

func TestRetiredModelsMigrated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	legacy := `{
  "ollama_url": "http://127.0.0.1:11434",
  "bastion_model": "deepseek-r1:7b",
  "auditor_model": "shieldgemma:2b-q4_0",
  "alert_threshold": "high",
  "auto_heal": false
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Load(dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "deepseek-r1:8b", s.Current().BastionModel)
	assert.Equal(t, "shieldgemma:2b", s.Current().AuditorModel)

	// Миграция сразу персистится: повторная загрузка видит новые имена
	reloaded, err := Load(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "deepseek-r1:8b", reloaded.Current().BastionModel)
}

func TestSaveRejectsInvalidThreshold(t *testing.T) {
	s, err := Load(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	bad := s.Current()
	bad.AlertThreshold = "apocalyptic"
	assert.Error(t, s.Save(bad))

	// Хранилище не изменилось
	assert.Equal(t, Defaults().AlertThreshold, s.Threshold())
}

func TestSaveRejectsEmptyIdentifiers(t *testing.T) {
	s, err := Load(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	bad := s.Current()
	bad.BastionModel = ""
	assert.Error(t, s.Save(bad))
}

func TestAlertRankMatchesSeverityScale(t *testing.T) {
	s, err := Load(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	// Дефолтный порог high
	assert.Equal(t, 3, s.AlertRank())

	next := s.Current()
	next.AlertThreshold = ThresholdMedium
	require.NoError(t, s.Save(next))
	assert.Equal(t, 2, s.AlertRank())
}

func TestInvalidStoredThresholdFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	raw := `{"ollama_url":"http://127.0.0.1:11434","bastion_model":"deepseek-r1:8b","auditor_model":"shieldgemma:2b","alert_threshold":"banana","auto_heal":true}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := Load(dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, Defaults().AlertThreshold, s.Threshold())
	assert.True(t, s.AutoHeal(), "valid fields survive the fallback")
}
