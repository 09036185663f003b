package domain

import "time"

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// RelayState is the lifecycle position of a WebSocket relay session.
type RelayState string

const (
	RelayIdle       RelayState = "idle"
	RelayConnecting RelayState = "connecting"
	RelaySending    RelayState = "sending"
	RelayListening  RelayState = "listening"
	RelayCompleted  RelayState = "completed"
	RelayFailed     RelayState = "failed"
)

// WebSocketSession is the caller's script for one relay run.
// A nil Listen selects the relay's default window; zero skips listening.
type WebSocketSession struct {
	ID       string
	URL      string
	Messages []string
	Headers  map[string]string
	Listen   *time.Duration
}

type WebSocketMessage struct {
	Direction Direction      `json:"direction"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Event     *SocketIOEvent `json:"event,omitempty"`
}

// SocketIOEvent annotates a received text frame that decoded as a Socket.IO event or ack.
type SocketIOEvent struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	AckID     *int64 `json:"ackId,omitempty"`
	Args      string `json:"args"`
}

// WebSocketResult is the transcript of a relay run in chronological order.
type WebSocketResult struct {
	Messages   []WebSocketMessage `json:"messages"`
	DurationMs uint64             `json:"duration_ms"`
	Status     RelayState         `json:"status"`
}
