package stream

/*
Пакет stream владеет единственным push-соединением с бэкендом.

Машина состояний: disconnected → connecting → connected → retrying → ...
Любой обрыв, кроме явного Disconnect, планирует РОВНО ОДНУ попытку
переподключения через фиксированную задержку (3с) — и так бесконечно,
пока не вызовут Disconnect. Бэкофф не растет: предсказуемость поведения
в демо важнее экономии. Таймер всегда один, живет внутри цикла run —
стек не растет, таймеры не текут.

Гарантий порядка между переподключениями нет: события до обрыва и после
восстановления принимаются независимо, истинный порядок дает только
временная метка записи.
*/

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/infra"
	"go.uber.org/zap"
)

// State — фаза соединения для дашборда
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateRetrying     State = "retrying"
)

// RecordSink — куда коннектор отдает валидные записи.
// Коннектор — только производитель: коллекцией владеет слой слияния.
type RecordSink interface {
	Ingest(rec domain.Record)
}

// DefaultRetryDelay — фиксированная пауза перед переподключением
const DefaultRetryDelay = 3 * time.Second

type Connector struct {
	url        string
	sink       RecordSink
	retryDelay time.Duration

	dialer  *websocket.Dialer
	logger  *zap.Logger
	metrics *infra.Metrics

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	gen    uint64 // поколение подключения: отсекает хвосты старых циклов

	connected atomic.Bool
}

func NewConnector(url string, sink RecordSink, retryDelay time.Duration, logger *zap.Logger, metrics *infra.Metrics) *Connector {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Connector{
		url:        url,
		sink:       sink,
		retryDelay: retryDelay,
		dialer:     websocket.DefaultDialer,
		logger:     logger.Named("stream"),
		metrics:    metrics,
		state:      StateDisconnected,
	}
}

// Connect запускает цикл поддержания соединения. Повторный вызов при живом
// цикле — no-op; после Disconnect можно подключаться заново.
func (c *Connector) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	c.state = StateConnecting

	go c.run(runCtx, c.gen)
}

// Disconnect рвет соединение и подавляет дальнейшие переподключения.
// Запрос в полете не отменяется — его результат отсечет поколение.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setState(StateDisconnected)
	c.logger.Info("stream disconnected by caller")
}

// Connected — сигнал живости для потребителей
func (c *Connector) Connected() bool {
	return c.connected.Load()
}

// State — текущая фаза машины состояний
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// run — устойчивый цикл: dial → чтение до обрыва → пауза → снова dial.
// Единственная точка, где планируется переподключение.
func (c *Connector) run(ctx context.Context, gen uint64) {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	// Таймер нужен только между попытками; первый dial — сразу
	if !timer.Stop() {
		<-timer.C
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream dial failed, will retry",
				zap.String("url", c.url),
				zap.Duration("delay", c.retryDelay),
				zap.Error(err))
			if !c.scheduleRetry(ctx, gen, timer) {
				return
			}
			continue
		}

		if !c.adopt(conn, gen) {
			// Пока dial шел, вызвали Disconnect — соединение уже не наше
			_ = conn.Close()
			return
		}

		c.logger.Info("stream connected", zap.String("url", c.url))
		c.readLoop(ctx, conn)

		c.drop(gen)
		if ctx.Err() != nil {
			return
		}

		c.logger.Info("stream closed, scheduling reconnect", zap.Duration("delay", c.retryDelay))
		if !c.scheduleRetry(ctx, gen, timer) {
			return
		}
	}
}

// scheduleRetry ждет фиксированную задержку или отмену.
// Возвращает false, если цикл пора завершить.
func (c *Connector) scheduleRetry(ctx context.Context, gen uint64, timer *time.Timer) bool {
	c.mu.Lock()
	if c.gen == gen {
		c.setState(StateRetrying)
	}
	c.mu.Unlock()

	c.metrics.StreamReconnects.Inc()

	timer.Reset(c.retryDelay)
	select {
	case <-timer.C:
		c.mu.Lock()
		if c.gen == gen {
			c.setState(StateConnecting)
		}
		c.mu.Unlock()
		return true
	case <-ctx.Done():
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		return false
	}
}

// adopt регистрирует живое соединение, если цикл все еще актуален
func (c *Connector) adopt(conn *websocket.Conn, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.cancel == nil {
		return false
	}
	c.conn = conn
	c.setState(StateConnected)
	return true
}

// drop снимает регистрацию соединения после обрыва
func (c *Connector) drop(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.setState(StateRetrying)
	}
}

// setState — только под c.mu
func (c *Connector) setState(next State) {
	c.state = next

	isConnected := next == StateConnected
	c.connected.Store(isConnected)
	if isConnected {
		c.metrics.StreamConnected.Set(1)
	} else {
		c.metrics.StreamConnected.Set(0)
	}
}

// readLoop вычитывает сообщения до первого сбоя чтения
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("stream read failed", zap.Error(err))
			}
			return
		}
		c.handleFrame(payload)
	}
}

// handleFrame разбирает входящее сообщение. Пересылаем в слияние только
// кадры с id и category; все прочее (ack соединения, ping, битый JSON)
// молча отбрасывается — это не ошибки, а шум канала.
func (c *Connector) handleFrame(payload []byte) {
	var rec domain.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		c.metrics.FramesDiscarded.Inc()
		c.logger.Debug("discarding non-record frame", zap.Error(err))
		return
	}
	if !rec.Valid() {
		c.metrics.FramesDiscarded.Inc()
		return
	}

	rec.Origin = domain.OriginLive
	c.sink.Ingest(rec)
}
