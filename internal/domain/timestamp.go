package domain

import (
	"bytes"
	"time"
)

// naiveLayout — формат datetime.isoformat() без таймзоны, который шлет
// исходный бэкенд (Python). Трактуем такие метки как UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Timestamp — время создания записи на стороне бэкенда.
// Принимает как строгий RFC3339, так и "наивный" ISO-формат.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}

	raw := string(bytes.Trim(data, `"`))

	// 1. Сначала пробуем каноничный формат
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}

	// 2. Затем — наивный ISO без смещения
	parsed, err := time.ParseInLocation(naiveLayout, raw, time.UTC)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
