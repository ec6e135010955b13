// Package history exposes the bounded, Postgres-backed room history an
// operator can inspect after the fact. It never feeds back into a live
// room: broadcast delivery is unaffected by whether this endpoint, or
// Postgres itself, is reachable.
package history

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/NuvandaPV/instant/internal/logging"
	"github.com/NuvandaPV/instant/internal/responses"
	"github.com/NuvandaPV/instant/internal/storage/postgres"
	"github.com/NuvandaPV/instant/internal/webutil"
)

const defaultLimit = 50

// Service serves GET /api/rooms/{room}/history for operators.
type Service struct {
	store  *postgres.Store
	logger *logging.Logger
}

// NewService builds a Service.
func NewService(store *postgres.Store, logger *logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Recent returns the room's captured envelopes, oldest first, each
// already-valid JSON as recorded off the broadcast path.
func (s *Service) Recent(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			webutil.HandleError(w, responses.BadRequestError{Msg: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	envelopes, err := s.store.RecentHistory(r.Context(), room, limit)
	if err != nil {
		s.logger.Errorf("history: recent %q: %v", room, err)
		webutil.HandleError(w, responses.InternalServerError{Msg: "failed to load room history"})
		return
	}

	raw := make([]json.RawMessage, len(envelopes))
	for i, e := range envelopes {
		raw[i] = json.RawMessage(e)
	}
	webutil.HandleSuccess(w, map[string]interface{}{"room": room, "history": raw})
}
