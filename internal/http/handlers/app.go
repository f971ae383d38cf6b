// Package handlers exposes the editing session over HTTP for the panel
// frontend: synchronous intents as POST endpoints, configuration as a small
// settings resource, and the event stream as a websocket.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"genpanel/internal/domain"
	"genpanel/internal/session"
	"genpanel/internal/settings"
	"genpanel/internal/storage"
)

// App bundles the handler dependencies.
type App struct {
	Controller *session.Controller
	Settings   *settings.Store
	Store      *storage.FileStore
	Logger     zerolog.Logger
}

// NewApp constructs the handler set.
func NewApp(ctrl *session.Controller, store *settings.Store, files *storage.FileStore, logger zerolog.Logger) *App {
	return &App{Controller: ctrl, Settings: store, Store: files, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps domain errors onto HTTP statuses and writes a JSON error body.
func (a *App) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrEmptyHistory),
		errors.Is(err, domain.ErrNothingToRetry),
		errors.Is(err, domain.ErrNothingStaged):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrUnknownSeed):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSettingKey),
		errors.Is(err, domain.ErrInvalidSettingValue):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoDocument),
		errors.Is(err, domain.ErrNoClient):
		code = http.StatusServiceUnavailable
	}
	a.json(w, code, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
