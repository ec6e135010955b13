package hooks

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NuvandaPV/instant/internal/fileserver"
)

func newReq(t *testing.T, method, path string, upgrade bool) *RequestData {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	if upgrade {
		r.Header.Set("Upgrade", "websocket")
		r.Header.Set("Connection", "Upgrade")
	}
	return NewRequestData(r)
}

func TestFileAliasHookRewritesPathAndDeclines(t *testing.T) {
	aliases := fileserver.NewAliasResolver()
	aliases.AddLiteral("/favicon.ico", "/static/logo.ico")
	h := &FileAliasHook{Aliases: aliases}

	req := newReq(t, "GET", "/favicon.ico", false)
	res, err := h.Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Claimed {
		t.Fatal("file-alias hook should never claim")
	}
	if req.Path != "/static/logo.ico" {
		t.Fatalf("Path = %q, want rewritten", req.Path)
	}
}

func TestFileAliasHookCycleClaims500(t *testing.T) {
	aliases := fileserver.NewAliasResolver()
	aliases.AddLiteral("/a", "/b")
	aliases.AddLiteral("/b", "/a")
	h := &FileAliasHook{Aliases: aliases}

	req := newReq(t, "GET", "/a", false)
	res, err := h.Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Claimed || res.Status != http.StatusInternalServerError {
		t.Fatalf("res = %+v, want claimed 500", res)
	}
}

func TestRedirectHookExpandsBackreference(t *testing.T) {
	h := NewRedirectHook()
	if err := h.Add(`/room/([a-zA-Z0-9_-]+)`, `/room/\1/`, http.StatusMovedPermanently); err != nil {
		t.Fatalf("Add: %v", err)
	}

	req := newReq(t, "GET", "/room/welcome", false)
	res, err := h.Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Claimed || res.Status != http.StatusMovedPermanently {
		t.Fatalf("res = %+v", res)
	}
	if loc := res.Header.Get("Location"); loc != "/room/welcome/" {
		t.Fatalf("Location = %q, want /room/welcome/", loc)
	}
}

func TestWebSocketHookRequiresUpgradeHeaders(t *testing.T) {
	h := NewWebSocketHook()
	h.AddCaptured(`/room/([a-zA-Z0-9_-]+)/ws`)

	plain := newReq(t, "GET", "/room/x/ws", false)
	res, _ := h.Evaluate(plain)
	if res.Claimed {
		t.Fatal("should decline a non-upgrade request even on a matching path")
	}

	upgraded := newReq(t, "GET", "/room/x/ws", true)
	res, err := h.Evaluate(upgraded)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Claimed || res.Upgrade == nil || res.Upgrade.Tag != "x" {
		t.Fatalf("res = %+v, want upgrade tag x", res)
	}
}

func TestWebSocketHookExactTag(t *testing.T) {
	h := NewWebSocketHook()
	h.AddExact("/api/ws", "")

	req := newReq(t, "GET", "/api/ws", true)
	res, err := h.Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Claimed || res.Upgrade == nil || res.Upgrade.Tag != "" {
		t.Fatalf("res = %+v, want upgrade tag \"\"", res)
	}
}

func TestNotFoundHookAlwaysClaims(t *testing.T) {
	req := newReq(t, "GET", "/nonexistent", false)
	res, err := NotFoundHook{}.Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Claimed || res.Status != http.StatusNotFound {
		t.Fatalf("res = %+v, want claimed 404", res)
	}
	if res.Header.Get("Connection") != "" {
		t.Fatalf("Connection = %q, want unset for a plain 404", res.Header.Get("Connection"))
	}
}

func TestNotFoundHookRejectedUpgradeClosesConnection(t *testing.T) {
	req := newReq(t, "GET", "/no-such-socket", true)
	res, err := NotFoundHook{}.Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Claimed || res.Status != http.StatusNotFound {
		t.Fatalf("res = %+v, want claimed 404", res)
	}
	if res.Header.Get("Connection") != "close" {
		t.Fatalf("Connection = %q, want close", res.Header.Get("Connection"))
	}
}

func TestRegistryDispatchFirstClaimWins(t *testing.T) {
	r := NewRegistry()
	r.Register(HookFunc(func(*RequestData) (Result, error) { return Decline(), nil }))
	r.Register(HookFunc(func(*RequestData) (Result, error) { return Claim(200, nil, []byte("ok")), nil }))
	r.Register(HookFunc(func(*RequestData) (Result, error) { t.Fatal("unreachable hook invoked"); return Result{}, nil }))
	r.Freeze()

	res, err := r.Dispatch(newReq(t, "GET", "/", false))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Claimed || string(res.Body) != "ok" {
		t.Fatalf("res = %+v", res)
	}
}

func TestRegistryRegisterPanicsAfterFreeze(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering after Freeze")
		}
	}()
	r.Register(NotFoundHook{})
}
