// Package httpserver wires the hook registry, the file producer
// pipeline and the chat distributor into a single HTTP entry point,
// and owns the WebSocket upgrade state machine.
package httpserver

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/NuvandaPV/instant/internal/chat"
	"github.com/NuvandaPV/instant/internal/hooks"
	"github.com/NuvandaPV/instant/internal/identity"
	"github.com/NuvandaPV/instant/internal/logging"
)

// Server is the request pipeline's entry point: every inbound request
// is offered to the hook registry, and a claimed WS upgrade hands off
// to the chat layer.
type Server struct {
	Registry     *hooks.Registry
	Distributor  *chat.Distributor
	Codec        *identity.Codec
	Upgrader     websocket.Upgrader
	CookieSecure bool
	Logger       *logging.Logger // debug/application log
	AccessLogger *logging.Logger // per-request HTTP access log
}

// New builds a Server. cookieSecure controls whether the sid cookie
// carries the Secure attribute (disabled via INSTANT_COOKIES_INSECURE).
func New(registry *hooks.Registry, dist *chat.Distributor, codec *identity.Codec, cookieSecure bool, logger, accessLogger *logging.Logger) *Server {
	return &Server{
		Registry: registry,
		Distributor: dist,
		Codec:    codec,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		CookieSecure: cookieSecure,
		Logger:       logger,
		AccessLogger: accessLogger,
	}
}

// Router builds a bare gorilla/mux router that funnels every path
// through the hook chain. Callers who need additional routes (e.g. the
// accounts API) should build their own *mux.Router, register those
// routes first, and call Mount so the catch-all hook chain is added
// last and never shadows them.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.Mount(r)
	return r
}

// Mount adds the catch-all hook-chain handler to r. Must be called
// after any other routes are registered on r.
func (s *Server) Mount(r *mux.Router) {
	r.PathPrefix("/").HandlerFunc(s.handle)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { s.logAccess(r, status, time.Since(start)) }()

	req := hooks.NewRequestData(r)
	res, err := s.Registry.Dispatch(req)
	if err != nil {
		status = http.StatusInternalServerError
		s.Logger.Errorf("hook dispatch error for %s: %v", req.Path, err)
		http.Error(w, "internal server error", status)
		return
	}
	if !res.Claimed {
		status = http.StatusNotFound
		http.Error(w, "not found", status)
		return
	}
	if res.Upgrade != nil {
		status = http.StatusSwitchingProtocols
		s.upgrade(w, r, res.Upgrade.Tag)
		return
	}

	header := w.Header()
	for k, vs := range res.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	status = res.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(res.Body)
}

// logAccess writes one line per request to the HTTP access log, per
// spec.md's --http-log flag; a nil AccessLogger (not configured) is a
// no-op.
func (s *Server) logAccess(r *http.Request, status int, elapsed time.Duration) {
	if s.AccessLogger == nil {
		return
	}
	s.AccessLogger.Infof("%s %s %d %s", r.Method, r.URL.Path, status, elapsed)
}

// sessionID returns the session identifier carried by an existing,
// valid sid cookie, or mints a fresh one. extraHeader is populated
// with a Set-Cookie entry only when a new session was minted.
func (s *Server) sessionID(r *http.Request, extraHeader http.Header) string {
	if c, err := r.Cookie("sid"); err == nil {
		if claims, err := s.Codec.Verify(c.Value); err == nil {
			return claims.SessionID
		}
	}

	sessionID := uuid.NewString()
	token, err := s.Codec.Sign(sessionID)
	if err != nil {
		s.Logger.Errorf("failed to sign session cookie: %v", err)
		return sessionID
	}

	cookie := &http.Cookie{
		Name:     "sid",
		Value:    token,
		Path:     "/",
		MaxAge:   31536000,
		HttpOnly: true,
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	extraHeader.Add("Set-Cookie", cookie.String())
	return sessionID
}

// magicCookie returns the per-connection X-Magic-Cookie header value:
// a quoted base64 encoding of 12 random bytes.
func magicCookie() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return `"` + base64.StdEncoding.EncodeToString(b) + `"`, nil
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, tag string) {
	responseHeader := http.Header{}
	sessionID := s.sessionID(r, responseHeader)

	magic, err := magicCookie()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	responseHeader.Set("X-Magic-Cookie", magic)
	responseHeader.Set("Content-Type", "application/x-websocket")

	conn, err := s.Upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.Logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	authCookie := ""
	if c, err := r.Cookie("sid"); err == nil {
		authCookie = c.Value
	}

	id := s.Distributor.NextConnectionID()
	client := chat.NewClient(id, conn, conn.RemoteAddr(), r.UserAgent(), r.Referer(), authCookie, sessionID)
	client.SetState(chat.StateOpen)

	s.Distributor.Join(client, tag)

	go s.writePump(client)
	s.readPump(client)
}

func (s *Server) writePump(client *chat.Client) {
	defer func() {
		client.SetState(chat.StateClosing)
		client.Close()
	}()
	for {
		select {
		case <-client.Closed():
			return
		case frame := <-client.SendQueue():
			if err := client.WriteMessage(frame); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(client *chat.Client) {
	defer func() {
		client.SetState(chat.StateClosing)
		s.Distributor.Leave(client)
		client.Close()
		client.Underlying().Close()
	}()

	for {
		frame, err := client.ReadMessage()
		if err != nil {
			return
		}
		s.Distributor.Dispatch(client, frame)
	}
}
