package domain

// Rule — действующее защитное правило (guardrail).
// Baseline-правила зашиты в системный промпт Bastion и неизменяемы;
// динамические ("вакцины") инъектируются движком лечения и могут
// отключаться или удаляться.
type Rule struct {
	ID             string    `json:"id"`
	Rule           string    `json:"rule"`
	Category       string    `json:"category"`
	Active         bool      `json:"active"`
	TriggeredCount int       `json:"triggeredCount"`
	Baseline       bool      `json:"baseline"`
	CreatedAt      Timestamp `json:"timestamp,omitzero"`
}
