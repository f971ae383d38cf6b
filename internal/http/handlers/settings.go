package handlers

import (
	"net/http"
)

// GetSettings returns the persisted configuration with the API key redacted
// to a presence flag.
func (a *App) GetSettings(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Settings.Snapshot())
}

// PutSettings applies a partial update. Each key is validated independently;
// the first invalid entry rejects the whole request.
func (a *App) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := decode(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	for key, value := range req {
		if err := a.Settings.Set(key, value); err != nil {
			a.fail(w, err)
			return
		}
	}
	a.json(w, http.StatusOK, a.Settings.Snapshot())
}
