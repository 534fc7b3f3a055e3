package domain

import (
	"bytes"
	"strings"
)

// Severity — уровень опасности пробитой атаки
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFromRisk маппит балл аудитора (1-10) в уровень.
// Пороги совпадают с исходной логикой бэкенда: >=8 critical, >=5 high.
func SeverityFromRisk(score int) Severity {
	switch {
	case score >= 8:
		return SeverityCritical
	case score >= 5:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Rank возвращает числовой вес для сравнения с порогом оповещений.
// Неизвестные значения трактуем как минимальные (не шумим).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ApprovalState — состояние ручного подтверждения лечения (HITL)
type ApprovalState string

const (
	ApprovalNone     ApprovalState = ""
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Resolved — по записи уже принято финальное решение
func (a ApprovalState) Resolved() bool {
	return a == ApprovalApproved || a == ApprovalRejected
}

// Origin — каким путем запись попала в клиент. В JSON не сериализуется:
// это внутренний приоритет слияния, а не свойство данных.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginFetched        // получена из истории (poll/fetch)
	OriginLive           // получена живым push-каналом
)

// Flag — булев флаг, который бэкенд может прислать как bool
// или как текст "Yes"/"No" (так отвечает классификатор ShieldGemma).
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("true")):
		*f = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*f = false
	default:
		raw := strings.Trim(string(data), `"`)
		*f = Flag(strings.EqualFold(raw, "yes"))
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// AuditVerdict — вердикт семантического аудитора по одной атаке
type AuditVerdict struct {
	Violation Flag   `json:"violation"`
	RiskScore int    `json:"risk_score"`
	Category  string `json:"category"`
	Reason    string `json:"reason"`
}

// HealAction — примененное лечение ("вакцина"), прикрепляется к записи
// после автолечения или ручного подтверждения.
type HealAction struct {
	AppliedAt Timestamp `json:"timestamp"`
	Category  string    `json:"category"`
	Action    string    `json:"heal_action"`
}

// Record — одна наблюдаемая атака с исходом и деталями аудита.
// Инвариант: ID и CreatedAt после первого появления записи не меняются.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt Timestamp `json:"timestamp"`
	Category  string    `json:"category"`
	Objective string    `json:"objective"`
	Persona   string    `json:"persona,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Response  string    `json:"response,omitempty"`

	// Breached: исходный бэкенд называет пробитие защиты "success" атаки
	// и шлет его как bool или как строку "Yes"/"No" — поэтому Flag
	Breached Flag     `json:"success"`
	Severity Severity `json:"severity,omitempty"`

	Audit    *AuditVerdict `json:"audit,omitempty"`
	Heal     *HealAction   `json:"heal,omitempty"`
	Approval ApprovalState `json:"approval,omitempty"`

	Origin Origin `json:"-"`
}

// Valid — минимальный контракт push-сообщения: есть идентификатор и категория.
// Все остальное (ack соединения, ping, мусор) молча отбрасывается выше.
func (r *Record) Valid() bool {
	return r.ID != "" && r.Category != ""
}
