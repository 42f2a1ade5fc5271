package ownership

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestBodyLimitCapsAssignPayload(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	adminID := f.addAdmin()

	router := mux.NewRouter()
	router.Use(BodyLimit(64))
	NewHandler(f.service).Register(router)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/carnivals/"+eventID.String()+"/owner", strings.NewReader(body))
		req.Header.Set("X-User-ID", adminID.String())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	oversized := post(`{"user_id": null, "padding": "` + strings.Repeat("x", 256) + `"}`)
	if oversized.Code != http.StatusBadRequest {
		t.Fatalf("expected an oversized body to be rejected, got %d", oversized.Code)
	}

	ok := post(`{"user_id": null}`)
	if ok.Code != http.StatusOK {
		t.Fatalf("expected a small body to pass the limit, got %d (%s)", ok.Code, ok.Body.String())
	}
}
