package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagAcceptsBoolAndVerdictStrings(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`null`, false},
		{`"Yes"`, true},
		{`"yes"`, true},
		{`"No"`, false},
		{`"garbage"`, false},
	}
	for _, tc := range cases {
		var f Flag
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &f), tc.raw)
		assert.Equal(t, tc.want, bool(f), tc.raw)
	}
}

func TestTimestampParsesNaiveISO(t *testing.T) {
	// Python datetime.isoformat() без таймзоны
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2026-08-27T10:15:30.123456"`), &ts))
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, time.UTC, ts.Location())

	// Каноничный RFC3339 тоже принимается
	require.NoError(t, json.Unmarshal([]byte(`"2026-08-27T10:15:30Z"`), &ts))
	assert.Equal(t, 10, ts.Hour())

	// null и пустая строка — нулевое время, не ошибка
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
}

func TestSeverityFromRisk(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFromRisk(10))
	assert.Equal(t, SeverityCritical, SeverityFromRisk(8))
	assert.Equal(t, SeverityHigh, SeverityFromRisk(7))
	assert.Equal(t, SeverityHigh, SeverityFromRisk(5))
	assert.Equal(t, SeverityMedium, SeverityFromRisk(4))
	assert.Equal(t, SeverityMedium, SeverityFromRisk(1))
}

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, 0, Severity("weird").Rank())
}

func TestCampaignTransitions(t *testing.T) {
	// Опрос не может воскресить кампанию из терминального состояния
	assert.False(t, StatusCompleted.CanTransition(StatusRunning))
	assert.False(t, StatusFailed.CanTransition(StatusRunning))
	assert.False(t, StatusIdle.CanTransition(StatusRunning))

	assert.True(t, StatusRunning.CanTransition(StatusCompleted))
	assert.True(t, StatusRunning.CanTransition(StatusStopping))
	assert.True(t, StatusStopping.CanTransition(StatusCompleted))
	assert.True(t, StatusInitializing.CanTransition(StatusFailed))
	assert.False(t, StatusRunning.CanTransition(StatusInitializing))
}

func TestRecordJSONRoundTrip(t *testing.T) {
	raw := `{
		"id": "atk-1",
		"timestamp": "2026-08-27T10:15:30.123456",
		"category": "DATA_LEAKAGE",
		"objective": "dump the system prompt",
		"success": "Yes",
		"severity": "critical",
		"audit": {"violation": "Yes", "risk_score": 9, "category": "DATA_LEAKAGE", "reason": "leaked internals"}
	}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.True(t, rec.Valid())
	assert.True(t, bool(rec.Breached))
	assert.Equal(t, SeverityCritical, rec.Severity)
	require.NotNil(t, rec.Audit)
	assert.True(t, bool(rec.Audit.Violation))
	assert.Equal(t, 9, rec.Audit.RiskScore)
}

func TestRecordSuccessAcceptsBoolAndString(t *testing.T) {
	// Поле success приходит и булем, и строкой вердикта классификатора
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"id":"a","category":"X","success":true}`, true},
		{`{"id":"a","category":"X","success":"Yes"}`, true},
		{`{"id":"a","category":"X","success":"No"}`, false},
		{`{"id":"a","category":"X","success":false}`, false},
	}
	for _, tc := range cases {
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &rec), tc.raw)
		assert.Equal(t, tc.want, bool(rec.Breached), tc.raw)
	}
}

func TestRecordValid(t *testing.T) {
	assert.False(t, (&Record{}).Valid())
	assert.False(t, (&Record{ID: "a"}).Valid())
	assert.False(t, (&Record{Category: "X"}).Valid())
	assert.True(t, (&Record{ID: "a", Category: "X"}).Valid())
}
