package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"go.uber.org/zap"
)

// collectSink копит записи, отданные коннектором
type collectSink struct {
	mu   sync.Mutex
	recs []domain.Record
}

func (s *collectSink) Ingest(rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *collectSink) all() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, len(s.recs))
	copy(out, s.recs)
	return out
}

// wsServer — тестовый push-сервер: каждому подключению шлет frames и ведет
// счетчик dial-ов
type wsServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	sessions int
	frames   []string
}

func newWSServer(t *testing.T, frames []string) *wsServer {
	t.Helper()
	ws := &wsServer{frames: frames}
	upgrader := websocket.Upgrader{}

	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.mu.Lock()
		ws.sessions++
		ws.mu.Unlock()

		for _, frame := range ws.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				break
			}
		}
		_ = conn.Close()
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsServer) sessionCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.sessions
}

func TestConnectorDeliversValidFrames(t *testing.T) {
	server := newWSServer(t, []string{
		`{"type":"connected"}`,                                      // ack без записи — шум
		`not even json`,                                             // битый кадр
		`{"id":"r1","category":"DATA_LEAKAGE","success":"Yes"}`,     // валидная запись
		`{"id":"r2","category":"UNSAFE_STRATEGY","success":false}`,  // валидная запись
		`{"category":"MALICIOUS_CODE"}`,                             // без id — отбрасывается
	})

	sink := &collectSink{}
	c := NewConnector(server.url(), sink, 50*time.Millisecond, zap.NewNop(), nil)
	c.Connect(context.Background())
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return len(sink.all()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	recs := sink.all()[:2]
	assert.Equal(t, "r1", recs[0].ID)
	assert.True(t, bool(recs[0].Breached), `"Yes" парсится как пробитие`)
	assert.Equal(t, domain.OriginLive, recs[0].Origin)
	assert.Equal(t, "r2", recs[1].ID)
	assert.False(t, bool(recs[1].Breached))
}

func TestConnectorReconnectsAfterDrop(t *testing.T) {
	server := newWSServer(t, []string{`{"id":"r1","category":"GENERAL_HARM"}`})

	sink := &collectSink{}
	c := NewConnector(server.url(), sink, 20*time.Millisecond, zap.NewNop(), nil)
	c.Connect(context.Background())
	defer c.Disconnect()

	// Сервер закрывает каждую сессию после отправки — коннектор обязан
	// возвращаться снова и снова
	require.Eventually(t, func() bool {
		return server.sessionCount() >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	server := newWSServer(t, nil)

	c := NewConnector(server.url(), &collectSink{}, 20*time.Millisecond, zap.NewNop(), nil)
	c.Connect(context.Background())

	require.Eventually(t, func() bool {
		return server.sessionCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Connected())

	sessions := server.sessionCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, sessions, server.sessionCount(), "no reconnect after explicit disconnect")
}

func TestConnectRetriesWhenServerUnavailable(t *testing.T) {
	// Адрес без слушателя: dial падает, коннектор остается в retrying
	c := NewConnector("ws://127.0.0.1:1/ws/attacks", &collectSink{}, 10*time.Millisecond, zap.NewNop(), nil)
	c.Connect(context.Background())
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		st := c.State()
		return st == StateRetrying || st == StateConnecting
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.Connected())
}

func TestConnectTwiceIsNoop(t *testing.T) {
	server := newWSServer(t, nil)

	c := NewConnector(server.url(), &collectSink{}, time.Hour, zap.NewNop(), nil)
	c.Connect(context.Background())
	c.Connect(context.Background())
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return server.sessionCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, server.sessionCount())
}
