package handlers

import "net/http"

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports whether a batch is running, the conversation length and the
// currently staged preview, if any.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Controller.Status())
}
