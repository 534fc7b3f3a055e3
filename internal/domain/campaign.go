package domain

// CampaignStatus — локальное состояние кампании red team
type CampaignStatus string

const (
	StatusIdle         CampaignStatus = "idle"
	StatusInitializing CampaignStatus = "initializing"
	StatusRunning      CampaignStatus = "running"
	StatusStopping     CampaignStatus = "stopping"
	StatusCompleted    CampaignStatus = "completed"
	StatusFailed       CampaignStatus = "failed"
)

// Active — кампания считается идущей (трекер продолжает опрос статуса)
func (s CampaignStatus) Active() bool {
	return s == StatusInitializing || s == StatusRunning || s == StatusStopping
}

// Terminal — финальное состояние, из которого выводит только явный запуск или сброс
func (s CampaignStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition описывает монотонный граф переходов, доступный БЕЗ явного
// действия пользователя. Свежие idle/initializing сюда не входят намеренно:
// опрос статуса не имеет права "воскресить" кампанию — это делает только
// Tracker.Start или полный сброс.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	allowed := map[CampaignStatus][]CampaignStatus{
		StatusInitializing: {StatusRunning, StatusFailed},
		StatusRunning:      {StatusStopping, StatusCompleted, StatusFailed},
		StatusStopping:     {StatusCompleted, StatusFailed},
	}
	for _, n := range allowed[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Summary — агрегаты по кампании
type Summary struct {
	Total     int `json:"total"`
	Contained int `json:"contained"`
	Breached  int `json:"breached"`
}

// SkipEntry — атака, пропущенная кампанией, потому что категория уже закрыта вакциной
type SkipEntry struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Reason   string `json:"reason,omitempty"`
}

// Campaign — одна ограниченная, отменяемая пачка атак
type Campaign struct {
	ID      string         `json:"id,omitempty"`
	Status  CampaignStatus `json:"status"`
	Summary Summary        `json:"summary"`
	Skipped []SkipEntry    `json:"skipped,omitempty"`
	Message string         `json:"message,omitempty"`
}
