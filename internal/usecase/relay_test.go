package usecase

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"api-tester/internal/domain"
	"api-tester/internal/infrastructure/observability"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// echoServer echoes every text frame back and optionally greets the client first.
func echoServer(t *testing.T, greeting ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, g := range greeting {
			if err := c.WriteMessage(websocket.TextMessage, []byte(g)); err != nil {
				return
			}
		}
		for {
			mt, p, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, p); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string { return "ws" + strings.TrimPrefix(httpURL, "http") }

func durationPtr(d time.Duration) *time.Duration { return &d }

func newRelay(dial WSDialer) (*WebSocketRelay, *observability.Metrics) {
	m := observability.NewMetrics()
	if dial == nil {
		dial = NewGorillaDialer(2*time.Second, false)
	}
	return NewWebSocketRelay(dial, m, nopLogger(), RelayOptions{
		HandshakeTimeout: 2 * time.Second,
		SendInterval:     10 * time.Millisecond,
		DefaultListen:    300 * time.Millisecond,
		MaxListen:        2 * time.Second,
	}), m
}

func TestRelay_SentBeforeReceived(t *testing.T) {
	is := is.New(t)
	srv := echoServer(t)
	defer srv.Close()

	r, m := newRelay(nil)
	start := time.Now()
	res, err := r.Run(context.Background(), domain.WebSocketSession{
		URL:      wsURL(srv.URL),
		Messages: []string{"a", "b"},
		Listen:   durationPtr(300 * time.Millisecond),
	})
	is.NoErr(err)
	is.Equal(res.Status, domain.RelayCompleted)
	is.Equal(len(res.Messages), 4)
	is.Equal(res.Messages[0].Direction, domain.DirectionSent)
	is.Equal(res.Messages[0].Content, "a")
	is.Equal(res.Messages[1].Direction, domain.DirectionSent)
	is.Equal(res.Messages[1].Content, "b")
	is.Equal(res.Messages[2].Direction, domain.DirectionReceived)
	is.Equal(res.Messages[2].Content, "a")
	is.Equal(res.Messages[3].Direction, domain.DirectionReceived)
	is.Equal(res.Messages[3].Content, "b")
	is.True(res.DurationMs >= 320)
	is.True(time.Since(start) >= 320*time.Millisecond)
	for _, msg := range res.Messages {
		_, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
		is.NoErr(err)
	}

	is.Equal(testutil.ToFloat64(m.WSMessagesTotal.WithLabelValues("sent")), 2.0)
	is.Equal(testutil.ToFloat64(m.WSMessagesTotal.WithLabelValues("received")), 2.0)
	is.Equal(testutil.ToFloat64(m.WSSessionsTotal.WithLabelValues("completed")), 1.0)
	is.Equal(testutil.ToFloat64(m.ActiveRequests), 0.0)
}

func TestRelay_HTTPSchemeIsRewritten(t *testing.T) {
	is := is.New(t)
	srv := echoServer(t, "hi")
	defer srv.Close()

	r, _ := newRelay(nil)
	res, err := r.Run(context.Background(), domain.WebSocketSession{URL: srv.URL, Listen: durationPtr(100 * time.Millisecond)})
	is.NoErr(err)
	is.Equal(len(res.Messages), 1)
	is.Equal(res.Messages[0].Content, "hi")
}

func TestRelay_SocketIOAnnotation(t *testing.T) {
	is := is.New(t)
	srv := echoServer(t, `0{"sid":"x"}`, `42["chat",{"text":"yo"}]`)
	defer srv.Close()

	r, _ := newRelay(nil)
	res, err := r.Run(context.Background(), domain.WebSocketSession{URL: wsURL(srv.URL), Listen: durationPtr(150 * time.Millisecond)})
	is.NoErr(err)
	is.Equal(len(res.Messages), 2)
	is.Equal(res.Messages[0].Event, (*domain.SocketIOEvent)(nil))
	is.True(res.Messages[1].Event != nil)
	is.Equal(res.Messages[1].Event.Name, "chat")
}

func TestRelay_ZeroListenSkipsListening(t *testing.T) {
	is := is.New(t)
	srv := echoServer(t, "ignored")
	defer srv.Close()

	r, _ := newRelay(nil)
	res, err := r.Run(context.Background(), domain.WebSocketSession{URL: wsURL(srv.URL), Messages: []string{"x"}, Listen: durationPtr(0)})
	is.NoErr(err)
	is.Equal(len(res.Messages), 1)
	is.Equal(res.Messages[0].Direction, domain.DirectionSent)
}

func TestRelay_PeerCloseEndsListening(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x00})
		_ = c.WriteMessage(websocket.TextMessage, []byte("bye"))
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.Close()
	}))
	defer srv.Close()

	r, _ := newRelay(nil)
	start := time.Now()
	res, err := r.Run(context.Background(), domain.WebSocketSession{URL: wsURL(srv.URL), Listen: durationPtr(2 * time.Second)})
	is.NoErr(err)
	is.Equal(res.Status, domain.RelayCompleted)
	is.Equal(len(res.Messages), 1)
	is.Equal(res.Messages[0].Content, "bye")
	is.True(time.Since(start) < 1500*time.Millisecond)
}

func TestRelay_InvalidURL(t *testing.T) {
	is := is.New(t)
	r, m := newRelay(nil)
	for _, u := range []string{"ftp://host/x", "ws://", "::nope"} {
		_, err := r.Run(context.Background(), domain.WebSocketSession{URL: u})
		is.Equal(domain.KindOf(err), domain.KindInvalidURL)
		is.True(strings.HasPrefix(err.Error(), "Invalid WebSocket URL: "))
	}
	is.Equal(testutil.ToFloat64(m.WSSessionsTotal.WithLabelValues("invalid_url")), 3.0)
}

func TestRelay_ConnectFailure(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r, m := newRelay(nil)
	_, err := r.Run(context.Background(), domain.WebSocketSession{URL: wsURL(srv.URL)})
	is.Equal(domain.KindOf(err), domain.KindConnectFailure)
	is.True(strings.HasPrefix(err.Error(), "WebSocket connection failed: "))
	is.Equal(testutil.ToFloat64(m.WSSessionsTotal.WithLabelValues("connect_failed")), 1.0)
	is.Equal(testutil.ToFloat64(m.ActiveRequests), 0.0)
}

func TestRelay_HandshakeHeaders(t *testing.T) {
	is := is.New(t)
	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Close()
	}))
	defer srv.Close()

	r, _ := newRelay(nil)
	_, err := r.Run(context.Background(), domain.WebSocketSession{
		URL:     wsURL(srv.URL),
		Headers: map[string]string{"X-Api-Key": "k", "Sec-WebSocket-Key": "nope", "Connection": "close"},
		Listen:  durationPtr(50 * time.Millisecond),
	})
	is.NoErr(err)
	h := <-got
	is.Equal(h.Get("X-Api-Key"), "k")
	is.True(h.Get("Sec-WebSocket-Key") != "nope")
	is.True(strings.HasPrefix(h.Get("Origin"), "http://127.0.0.1"))
}

// scriptedConn fails the write numbered failAt (1-based), replays inbound frames,
// then returns readErr (a normal close when nil).
type scriptedConn struct {
	mu      sync.Mutex
	writes  []string
	failAt  int
	inbound []string
	readErr error
	closed  bool
}

func (c *scriptedConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes)+1 == c.failAt {
		return errors.New("broken pipe")
	}
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		if c.readErr != nil {
			return 0, nil, c.readErr
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	m := c.inbound[0]
	c.inbound = c.inbound[1:]
	return websocket.TextMessage, []byte(m), nil
}

func (c *scriptedConn) SetReadDeadline(time.Time) error { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

func (c *scriptedConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func TestRelay_PartialSendStillCompletes(t *testing.T) {
	is := is.New(t)
	conn := &scriptedConn{failAt: 3, inbound: []string{"late"}}
	dial := func(context.Context, string, http.Header) (WSConn, error) { return conn, nil }

	r, m := newRelay(dial)
	res, err := r.Run(context.Background(), domain.WebSocketSession{
		URL:      "ws://upstream.test/socket",
		Messages: []string{"m1", "m2", "m3", "m4"},
	})
	is.NoErr(err)
	is.Equal(res.Status, domain.RelayCompleted)
	is.Equal(len(res.Messages), 3)
	is.Equal(res.Messages[0].Content, "m1")
	is.Equal(res.Messages[1].Content, "m2")
	is.Equal(res.Messages[2].Direction, domain.DirectionReceived)
	is.Equal(res.Messages[2].Content, "late")
	is.Equal(conn.writes, []string{"m1", "m2"})
	is.True(conn.closed)
	is.Equal(testutil.ToFloat64(m.ProxyErrorsTotal.WithLabelValues("ws_send")), 1.0)
}

func TestRelay_FailuresAreLoggedWithKind(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	conn := &scriptedConn{failAt: 2, readErr: errors.New("connection reset")}
	dial := func(context.Context, string, http.Header) (WSConn, error) { return conn, nil }

	m := observability.NewMetrics()
	r := NewWebSocketRelay(dial, m, &logger, RelayOptions{
		HandshakeTimeout: time.Second,
		DefaultListen:    100 * time.Millisecond,
		MaxListen:        time.Second,
	})
	res, err := r.Run(context.Background(), domain.WebSocketSession{
		URL:      "ws://upstream.test/socket",
		Messages: []string{"m1", "m2"},
	})
	is.NoErr(err)
	is.Equal(res.Status, domain.RelayCompleted)
	is.Equal(len(res.Messages), 1)

	out := buf.String()
	is.True(strings.Contains(out, `"kind":"SEND_FAILURE"`))
	is.True(strings.Contains(out, `"kind":"RECEIVE_FAILURE"`))
	is.True(strings.Contains(out, "connection reset"))
	is.Equal(testutil.ToFloat64(m.ProxyErrorsTotal.WithLabelValues("ws_send")), 1.0)
	is.Equal(testutil.ToFloat64(m.ProxyErrorsTotal.WithLabelValues("ws_receive")), 1.0)
}

func TestRelay_DialerError(t *testing.T) {
	is := is.New(t)
	dial := func(context.Context, string, http.Header) (WSConn, error) { return nil, errors.New("refused") }
	r, _ := newRelay(dial)
	_, err := r.Run(context.Background(), domain.WebSocketSession{URL: "wss://upstream.test"})
	is.Equal(domain.KindOf(err), domain.KindConnectFailure)
	is.Equal(err.Error(), "WebSocket connection failed: refused")
}

func TestRelay_ListenWindow(t *testing.T) {
	is := is.New(t)
	r, _ := newRelay(nil)
	is.Equal(r.ListenWindow(nil), 300*time.Millisecond)
	is.Equal(r.ListenWindow(durationPtr(time.Second)), time.Second)
	is.Equal(r.ListenWindow(durationPtr(time.Hour)), 2*time.Second)
	is.Equal(r.ListenWindow(durationPtr(-time.Second)), time.Duration(0))
}
