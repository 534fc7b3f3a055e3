package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notice — одно одноразовое уведомление пользователю
type Notice struct {
	ID    string    `json:"id"`
	Level string    `json:"level"` // info, alert, error
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Notifier — буфер одноразовых уведомлений с выдачей "прочитал — забрал".
// Переполнение решается сбросом самых старых: свежие важнее.
type Notifier struct {
	mu       sync.Mutex
	buf      []Notice
	capacity int
	logger   *zap.Logger
}

func NewNotifier(capacity int, logger *zap.Logger) *Notifier {
	if capacity <= 0 {
		capacity = 100
	}
	return &Notifier{
		capacity: capacity,
		logger:   logger.Named("notifier"),
	}
}

// Push добавляет уведомление. Реализует Notifier-интерфейсы трекера и воркфлоу.
func (n *Notifier) Push(level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.buf = append(n.buf, Notice{
		ID:    uuid.New().String(),
		Level: level,
		Text:  text,
		At:    time.Now(),
	})
	if len(n.buf) > n.capacity {
		n.buf = n.buf[len(n.buf)-n.capacity:]
	}

	n.logger.Debug("notice queued", zap.String("level", level), zap.String("text", text))
}

// Drain отдает накопленные уведомления и очищает буфер
func (n *Notifier) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.buf
	n.buf = nil
	if out == nil {
		// Фронтенд должен получить [], а не null
		out = []Notice{}
	}
	return out
}
