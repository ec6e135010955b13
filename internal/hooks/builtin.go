package hooks

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/NuvandaPV/instant/internal/fileserver"
)

// FileAliasHook rewrites req.Path through an AliasResolver before any
// later hook sees it. It never itself claims a request, except when
// the alias chain cycles, which the pipeline reports as a 500.
type FileAliasHook struct {
	Aliases *fileserver.AliasResolver
}

func (h *FileAliasHook) Evaluate(req *RequestData) (Result, error) {
	resolved, err := h.Aliases.Resolve(req.Path)
	if err != nil {
		return Claim(http.StatusInternalServerError, nil, []byte("alias cycle")), nil
	}
	req.Path = resolved
	return Decline(), nil
}

// StaticFileHook serves a resolved path out of the file producer
// pipeline. A producer I/O error is a server-side transient failure,
// isolated to this request; a clean miss declines so later hooks (the
// 404 hook) can run.
type StaticFileHook struct {
	Pipeline *fileserver.Pipeline
}

func (h *StaticFileHook) Evaluate(req *RequestData) (Result, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return Decline(), nil
	}
	blob, ok, err := h.Pipeline.Get(req.Path)
	if err != nil {
		return Claim(http.StatusInternalServerError, nil, []byte("internal error")), nil
	}
	if !ok {
		return Decline(), nil
	}
	header := http.Header{}
	header.Set("Content-Type", blob.ContentType)
	return Claim(http.StatusOK, header, blob.Data), nil
}

// redirectRule is one (pattern -> template, code) entry.
type redirectRule struct {
	pattern *regexp.Regexp
	tmpl    string
	code    int
}

// RedirectHook issues an HTTP redirect when req.Path matches one of
// its registered patterns, expanding \0-\9 backreferences into the
// target template the same way file aliases do.
type RedirectHook struct {
	rules []redirectRule
}

// NewRedirectHook returns an empty RedirectHook.
func NewRedirectHook() *RedirectHook {
	return &RedirectHook{}
}

// Add registers a pattern -> template redirect with the given status
// code (301 or 302).
func (h *RedirectHook) Add(pattern, tmpl string, code int) error {
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return err
	}
	h.rules = append(h.rules, redirectRule{pattern: re, tmpl: tmpl, code: code})
	return nil
}

func (h *RedirectHook) Evaluate(req *RequestData) (Result, error) {
	for _, rule := range h.rules {
		m := rule.pattern.FindStringSubmatchIndex(req.Path)
		if m == nil {
			continue
		}
		location := fileserver.ExpandBackreferences(rule.tmpl, req.Path, m)
		header := http.Header{}
		header.Set("Location", location)
		return Claim(rule.code, header, nil), nil
	}
	return Decline(), nil
}

// wsRule matches a WS upgrade path and extracts its tag.
type wsRule struct {
	pattern *regexp.Regexp
	tag     string // used verbatim when no capture group is present
}

// WebSocketHook claims requests whose path matches one of its
// whitelisted patterns and whose headers carry a WebSocket upgrade
// request, handing off to the upgrade step with the matched tag.
type WebSocketHook struct {
	rules []wsRule
}

// NewWebSocketHook returns an empty WebSocketHook.
func NewWebSocketHook() *WebSocketHook {
	return &WebSocketHook{}
}

// AddExact whitelists an exact path, always producing tag regardless
// of any capture (used for the bare /api/ws socket, tag "").
func (h *WebSocketHook) AddExact(path, tag string) {
	h.rules = append(h.rules, wsRule{pattern: regexp.MustCompile("^" + regexp.QuoteMeta(path) + "$"), tag: tag})
}

// AddCaptured whitelists a pattern whose first capture group supplies
// the tag (used for /room/<ROOM>/ws).
func (h *WebSocketHook) AddCaptured(pattern string) {
	h.rules = append(h.rules, wsRule{pattern: regexp.MustCompile("^" + pattern + "$")})
}

func isWebSocketUpgrade(req *RequestData) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade")
}

func (h *WebSocketHook) Evaluate(req *RequestData) (Result, error) {
	if !isWebSocketUpgrade(req) {
		return Decline(), nil
	}
	for _, rule := range h.rules {
		m := rule.pattern.FindStringSubmatch(req.Path)
		if m == nil {
			continue
		}
		tag := rule.tag
		if len(m) > 1 {
			tag = m[1]
		}
		return ClaimUpgrade(tag), nil
	}
	return Decline(), nil
}

// NotFoundHook is the built-in fallback: always claims with a minimal
// 404 body.
type NotFoundHook struct{}

func (NotFoundHook) Evaluate(req *RequestData) (Result, error) {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	if isWebSocketUpgrade(req) {
		// A WS upgrade that fell through every WebSocketHook rule hit no
		// whitelisted path: reject outright rather than leave the client
		// waiting on a socket that will never open.
		header.Set("Connection", "close")
	}
	return Claim(http.StatusNotFound, header, []byte(fmt.Sprintf("not found: %s", req.Path))), nil
}
