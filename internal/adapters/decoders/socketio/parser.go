package socketio

import (
	"encoding/json"
	"strconv"
	"strings"

	"api-tester/internal/domain"
)

// Packet type codes as they appear after the Engine.IO message prefix '4'.
const (
	typeEvent       = '2'
	typeAck         = '3'
	typeBinaryEvent = '5'
	typeBinaryAck   = '6'
)

// ParseEvent decodes a Socket.IO v3/v4 event or ack carried in a text frame.
//
//	42[/nsp,][ack][args]                 EVENT
//	43[/nsp,][ack][args]                 ACK (reported as event "ack")
//	45<n>-[/nsp,][ack][args]             BINARY_EVENT
//	46<n>-[/nsp,][ack][args]             BINARY_ACK (reported as event "ack")
//
// Anything else, including connect/ping packets, returns ok=false.
func ParseEvent(s string) (*domain.SocketIOEvent, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || s[0] != '4' {
		return nil, false
	}
	kind := s[1]
	rest := s[2:]
	switch kind {
	case typeEvent, typeAck:
	case typeBinaryEvent, typeBinaryAck:
		n := leadingDigits(rest)
		if n == 0 || n >= len(rest) || rest[n] != '-' {
			return nil, false
		}
		rest = rest[n+1:]
	default:
		return nil, false
	}
	// some encoders emit a comma directly after the type code
	rest = strings.TrimPrefix(rest, ",")

	ev := &domain.SocketIOEvent{}
	if strings.HasPrefix(rest, "/") {
		idx := strings.IndexByte(rest, ',')
		if idx <= 0 {
			return nil, false
		}
		ev.Namespace = rest[:idx]
		rest = rest[idx+1:]
	}
	if n := leadingDigits(rest); n > 0 {
		ack, err := strconv.ParseInt(rest[:n], 10, 64)
		if err != nil {
			return nil, false
		}
		ev.AckID = &ack
		rest = rest[n:]
	}
	if !strings.HasPrefix(rest, "[") {
		return nil, false
	}
	ev.Args = rest

	if kind == typeAck || kind == typeBinaryAck {
		ev.Name = "ack"
		return ev, true
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil || len(arr) == 0 {
		return nil, false
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil || name == "" {
		return nil, false
	}
	ev.Name = name
	return ev, true
}

func leadingDigits(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}
