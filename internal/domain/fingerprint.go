package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Fingerprint derives the cache key of a request from its method, url, headers and body.
// It is a pure function: absent headers or body serialize to "null" and
// headers are written with sorted keys so lookup and store always agree.
func Fingerprint(r ProxyRequest) string {
	h := sha256.New()
	for _, part := range [][]byte{
		[]byte(r.Method),
		[]byte(r.URL),
		serializeHeaders(r.Headers),
		serializeBody(r.Body),
	} {
		// length-prefix every field so boundaries cannot shift between fields
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func serializeHeaders(hdr map[string]string) []byte {
	if hdr == nil {
		return []byte("null")
	}
	// encoding/json writes map keys in sorted order
	b, err := json.Marshal(hdr)
	if err != nil {
		return []byte("null")
	}
	return b
}

func serializeBody(body json.RawMessage) []byte {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return []byte("null")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return b
	}
	return buf.Bytes()
}
