package usecase

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	sio "api-tester/internal/adapters/decoders/socketio"
	"api-tester/internal/domain"
	"api-tester/pkg/shared/id"
)

// WSConn is the subset of *websocket.Conn used by the relay.
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// WSDialer opens the outbound connection for one relay session.
type WSDialer func(ctx context.Context, rawURL string, hdr http.Header) (WSConn, error)

// NewGorillaDialer returns a WSDialer backed by gorilla/websocket.
func NewGorillaDialer(handshakeTimeout time.Duration, insecureTLS bool) WSDialer {
	return func(ctx context.Context, rawURL string, hdr http.Header) (WSConn, error) {
		dialer := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			NetDialContext:   (&net.Dialer{Timeout: handshakeTimeout}).DialContext,
		}
		if insecureTLS && strings.HasPrefix(rawURL, "wss://") {
			dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		conn, resp, err := dialer.DialContext(ctx, rawURL, hdr)
		if err != nil {
			if resp != nil {
				if resp.Body != nil {
					_ = resp.Body.Close()
				}
				return nil, fmt.Errorf("%w (handshake status %s)", err, resp.Status)
			}
			return nil, err
		}
		return conn, nil
	}
}

type RelayOptions struct {
	HandshakeTimeout time.Duration
	SendInterval     time.Duration
	DefaultListen    time.Duration
	MaxListen        time.Duration
}

const writeWait = 15 * time.Second

// handshake headers the dialer owns
var reservedWSHeaders = map[string]struct{}{
	"Upgrade":                  {},
	"Connection":               {},
	"Sec-Websocket-Key":        {},
	"Sec-Websocket-Version":    {},
	"Sec-Websocket-Extensions": {},
}

// WebSocketRelay runs scripted send/listen sessions against an upstream WebSocket.
type WebSocketRelay struct {
	dial    WSDialer
	metrics MetricsHooks
	logger  *zerolog.Logger
	opts    RelayOptions
}

func NewWebSocketRelay(dial WSDialer, metrics MetricsHooks, logger *zerolog.Logger, opts RelayOptions) *WebSocketRelay {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.SendInterval < 0 {
		opts.SendInterval = 0
	}
	if opts.DefaultListen <= 0 {
		opts.DefaultListen = 5 * time.Second
	}
	if opts.MaxListen <= 0 {
		opts.MaxListen = 60 * time.Second
	}
	if dial == nil {
		dial = NewGorillaDialer(opts.HandshakeTimeout, false)
	}
	return &WebSocketRelay{dial: dial, metrics: metrics, logger: logger, opts: opts}
}

// ListenWindow resolves the caller's listen duration against the configured default and ceiling.
func (r *WebSocketRelay) ListenWindow(d *time.Duration) time.Duration {
	w := r.opts.DefaultListen
	if d != nil {
		w = *d
	}
	if w < 0 {
		w = 0
	}
	if w > r.opts.MaxListen {
		w = r.opts.MaxListen
	}
	return w
}

// Run connects, sends every scripted message in order, then listens for the
// session's window. Only URL and connect failures are returned as errors; send
// and receive failures shorten the transcript.
func (r *WebSocketRelay) Run(ctx context.Context, sess domain.WebSocketSession) (domain.WebSocketResult, error) {
	start := time.Now()
	r.metrics.RequestStarted()
	defer r.metrics.RequestFinished()

	if sess.ID == "" {
		sess.ID = id.New()
	}
	log := r.logger.With().Str("session", sess.ID).Str("url", sess.URL).Logger()
	state := domain.RelayIdle
	transition := func(next domain.RelayState) {
		log.Debug().Str("from", string(state)).Str("to", string(next)).Msg("relay state")
		state = next
	}

	transition(domain.RelayConnecting)
	target, err := normalizeWSURL(sess.URL)
	if err != nil {
		transition(domain.RelayFailed)
		r.metrics.WSSession("invalid_url")
		return domain.WebSocketResult{}, domain.NewError(domain.KindInvalidURL, "Invalid WebSocket URL: "+err.Error(), err)
	}

	hdr := wsHeaders(target, sess.Headers)
	dialCtx, cancelDial := context.WithTimeout(ctx, r.opts.HandshakeTimeout)
	conn, err := r.dial(dialCtx, target.String(), hdr)
	cancelDial()
	if err != nil {
		transition(domain.RelayFailed)
		r.metrics.WSSession("connect_failed")
		log.Error().Err(err).Msg("websocket connect failed")
		kind := domain.KindConnectFailure
		if ctx.Err() != nil {
			kind = domain.KindTimeout
		}
		return domain.WebSocketResult{}, domain.NewError(kind, "WebSocket connection failed: "+err.Error(), err)
	}
	// unblocks any pending read or write once the caller goes away
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	transcript := make([]domain.WebSocketMessage, 0, len(sess.Messages))

	transition(domain.RelaySending)
	for i, msg := range sess.Messages {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			serr := domain.NewError(domain.KindSendFailure, fmt.Sprintf("send message %d: %v", i, err), err)
			r.metrics.ProxyError("ws_send")
			log.Error().Err(serr).Str("kind", string(serr.Kind)).Int("index", i).Msg("failed to send websocket message")
			break
		}
		r.metrics.WSMessage(string(domain.DirectionSent))
		transcript = append(transcript, domain.WebSocketMessage{
			Direction: domain.DirectionSent,
			Content:   msg,
			Timestamp: timestamp(),
		})
		if !sleepCtx(ctx, r.opts.SendInterval) {
			break
		}
	}

	transition(domain.RelayListening)
	window := r.ListenWindow(sess.Listen)
	if window > 0 && ctx.Err() == nil {
		transcript = r.listen(ctx, conn, window, transcript, &log)
	}

	closeErr := multierr.Combine(
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second)),
		conn.Close(),
	)
	if closeErr != nil {
		log.Debug().Err(closeErr).Msg("websocket close")
	}

	transition(domain.RelayCompleted)
	r.metrics.WSSession("completed")
	res := domain.WebSocketResult{Messages: transcript, DurationMs: elapsedMs(start), Status: domain.RelayCompleted}
	log.Info().Int("messages", len(transcript)).Uint64("duration_ms", res.DurationMs).Msg("websocket relay completed")
	return res, nil
}

// listen appends received text frames until the window closes, the peer
// closes, or a read fails.
func (r *WebSocketRelay) listen(ctx context.Context, conn WSConn, window time.Duration, transcript []domain.WebSocketMessage, log *zerolog.Logger) []domain.WebSocketMessage {
	_ = conn.SetReadDeadline(time.Now().Add(window))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
			case ctx.Err() != nil:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				log.Debug().Msg("upstream closed websocket")
			default:
				rerr := domain.NewError(domain.KindReceiveFailure, "receive: "+err.Error(), err)
				r.metrics.ProxyError("ws_receive")
				log.Warn().Err(rerr).Str("kind", string(rerr.Kind)).Msg("websocket receive error")
			}
			return transcript
		}
		if mt != websocket.TextMessage || !utf8.Valid(data) {
			continue
		}
		m := domain.WebSocketMessage{
			Direction: domain.DirectionReceived,
			Content:   string(data),
			Timestamp: timestamp(),
		}
		if ev, ok := sio.ParseEvent(m.Content); ok {
			m.Event = ev
		}
		r.metrics.WSMessage(string(domain.DirectionReceived))
		transcript = append(transcript, m)
	}
}

// normalizeWSURL accepts ws(s) URLs and rewrites http(s) to the matching ws scheme.
func normalizeWSURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		u.Scheme = strings.ToLower(u.Scheme)
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		return nil, fmt.Errorf("relative URL without a base")
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("empty host")
	}
	return u, nil
}

// wsHeaders filters caller headers for the handshake. Some upstreams insist on
// an Origin, so one is synthesized from the target when the caller sent none.
func wsHeaders(target *url.URL, in map[string]string) http.Header {
	hdr, _ := filterHeaders(in)
	for k := range reservedWSHeaders {
		hdr.Del(k)
	}
	if hdr.Get("Origin") == "" {
		origin := "http://" + target.Host
		if target.Scheme == "wss" {
			origin = "https://" + target.Host
		}
		hdr.Set("Origin", origin)
	}
	return hdr
}

// sleepCtx pauses for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
