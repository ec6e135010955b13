package history

import (
	"io"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/NuvandaPV/instant/internal/logging"
)

func TestRecentRejectsInvalidLimit(t *testing.T) {
	svc := NewService(nil, logging.New(log.New(io.Discard, "", 0), logging.LevelDebug))

	r := httptest.NewRequest("GET", "/api/rooms/lobby/history?limit=0", nil)
	r = mux.SetURLVars(r, map[string]string{"room": "lobby"})
	w := httptest.NewRecorder()

	svc.Recent(w, r)

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
