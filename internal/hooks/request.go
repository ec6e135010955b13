// Package hooks implements the request pipeline's ordered hook chain:
// each inbound request is offered to every registered hook in turn,
// and the first to claim it wins.
package hooks

import (
	"net/http"
	"net/url"
	"time"
)

// QueryParam is one key/value pair from the request's query string,
// kept in the order it appeared on the wire.
type QueryParam struct {
	Key   string
	Value string
}

// RequestData is the read-mostly view of an inbound request that hooks
// evaluate against. ExtraData is a mutable bag hooks may use to pass
// information to one another or to the upgrade step.
type RequestData struct {
	Method     string
	Path       string
	Query      []QueryParam
	Header     http.Header
	Cookies    map[string]string
	RemoteAddr string
	Timestamp  int64
	Referer    string
	UserAgent  string
	ExtraData  map[string]interface{}

	raw *http.Request
}

// NewRequestData builds a RequestData view of r.
func NewRequestData(r *http.Request) *RequestData {
	cookies := make(map[string]string, len(r.Cookies()))
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	return &RequestData{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      orderedQuery(r),
		Header:     r.Header,
		Cookies:    cookies,
		RemoteAddr: r.RemoteAddr,
		Timestamp:  time.Now().UnixMilli(),
		Referer:    r.Referer(),
		UserAgent:  r.UserAgent(),
		ExtraData:  make(map[string]interface{}),
		raw:        r,
	}
}

// orderedQuery preserves the raw query string's pair order, repeated
// keys included, rather than url.Values' unordered per-key grouping.
// Pairs whose key or value fails to unescape are skipped.
func orderedQuery(r *http.Request) []QueryParam {
	query := make([]QueryParam, 0)
	for _, pair := range splitRawQuery(r.URL.RawQuery) {
		key, value := pair, ""
		if eq := indexByte(pair, '='); eq >= 0 {
			key, value = pair[:eq], pair[eq+1:]
		}
		k, errK := url.QueryUnescape(key)
		v, errV := url.QueryUnescape(value)
		if errK == nil && errV == nil {
			query = append(query, QueryParam{Key: k, Value: v})
		}
	}
	return query
}

func splitRawQuery(raw string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '&' {
			if i > start {
				parts = append(parts, raw[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Raw exposes the underlying *http.Request for the upgrade step, which
// needs it to hand off to a websocket.Upgrader.
func (rd *RequestData) Raw() *http.Request { return rd.raw }
