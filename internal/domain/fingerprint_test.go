package domain

import (
	"encoding/json"
	"testing"

	"github.com/matryer/is"
)

func baseRequest() ProxyRequest {
	return ProxyRequest{
		Method:  "GET",
		URL:     "http://echo/get",
		Headers: map[string]string{"Accept": "application/json", "X-Trace": "1"},
		Body:    json.RawMessage(`{"a":1,"b":[true,null]}`),
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	is := is.New(t)
	a := baseRequest()
	b := baseRequest()
	is.Equal(Fingerprint(a), Fingerprint(b))
	// map iteration order must not leak into the key
	for i := 0; i < 50; i++ {
		is.Equal(Fingerprint(a), Fingerprint(baseRequest()))
	}
}

func TestFingerprint_IgnoresUseCacheFlag(t *testing.T) {
	is := is.New(t)
	a := baseRequest()
	b := baseRequest()
	b.UseCache = true
	is.Equal(Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_EachFieldChangesKey(t *testing.T) {
	is := is.New(t)
	base := Fingerprint(baseRequest())

	m := baseRequest()
	m.Method = "POST"
	is.True(Fingerprint(m) != base)

	u := baseRequest()
	u.URL = "http://echo/get?x=1"
	is.True(Fingerprint(u) != base)

	h := baseRequest()
	h.Headers["X-Trace"] = "2"
	is.True(Fingerprint(h) != base)

	nh := baseRequest()
	nh.Headers = nil
	is.True(Fingerprint(nh) != base)

	bd := baseRequest()
	bd.Body = json.RawMessage(`{"a":2,"b":[true,null]}`)
	is.True(Fingerprint(bd) != base)
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	is := is.New(t)
	a := ProxyRequest{Method: "GET", URL: "http://x/a:b"}
	b := ProxyRequest{Method: "GET:http", URL: "//x/a:b"}
	is.True(Fingerprint(a) != Fingerprint(b))
}

func TestFingerprint_AbsentBodyEqualsNull(t *testing.T) {
	is := is.New(t)
	a := ProxyRequest{Method: "GET", URL: "http://x/"}
	b := ProxyRequest{Method: "GET", URL: "http://x/", Body: json.RawMessage("null")}
	is.Equal(Fingerprint(a), Fingerprint(b))
	is.True(!a.HasBody())
	is.True(!b.HasBody())
}

func TestFingerprint_BodyWhitespaceInsensitive(t *testing.T) {
	is := is.New(t)
	a := ProxyRequest{Method: "POST", URL: "http://x/", Body: json.RawMessage(`{"a": 1}`)}
	b := ProxyRequest{Method: "POST", URL: "http://x/", Body: json.RawMessage(`{"a":1}`)}
	is.Equal(Fingerprint(a), Fingerprint(b))
}

func TestKindOf(t *testing.T) {
	is := is.New(t)
	err := NewError(KindTimeout, "Request timeout", nil)
	is.Equal(KindOf(err), KindTimeout)
	is.Equal(KindOf(nil), ErrorKind(""))
	is.Equal(err.Error(), "Request timeout")
}
