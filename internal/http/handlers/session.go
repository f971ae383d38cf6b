package handlers

import (
	"fmt"
	"net/http"

	"genpanel/internal/imgutil"
	"genpanel/internal/session"
)

type sendRequest struct {
	Prompt    string `json:"prompt"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// Send starts a generation batch. The response acknowledges acceptance;
// results arrive on the event stream.
func (a *App) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := a.Controller.Send(session.SendRequest{Prompt: req.Prompt, BatchSize: req.BatchSize}); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Retry undoes the last exchange and re-sends its prompt. The recovered
// prompt is returned so the frontend can rewind its visible log.
func (a *App) Retry(w http.ResponseWriter, r *http.Request) {
	prompt, err := a.Controller.Retry()
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"status": "started", "prompt": prompt})
}

func (a *App) Undo(w http.ResponseWriter, r *http.Request) {
	if err := a.Controller.Undo(); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) Reset(w http.ResponseWriter, r *http.Request) {
	if err := a.Controller.Reset(); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enhanceRequest struct {
	Text string `json:"text"`
}

// Enhance expands the raw text into a structured prompt. On success the
// expanded prompt is already being sent when the response returns; an
// error-shaped result is returned with 422 and nothing is sent.
func (a *App) Enhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := decode(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	p, err := a.Controller.Enhance(r.Context(), req.Text)
	if err != nil {
		a.fail(w, err)
		return
	}
	if p.Failed() {
		a.json(w, http.StatusUnprocessableEntity, p)
		return
	}
	a.json(w, http.StatusAccepted, p)
}

type selectRequest struct {
	Seed int32 `json:"seed"`
}

// SelectImage stages the produced image with the given seed.
func (a *App) SelectImage(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decode(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := a.Controller.SelectImage(req.Seed); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "staged"})
}

type commitRequest struct {
	Name string `json:"name,omitempty"`
}

// Commit finalizes the staged preview as a named layer and persists the
// committed image to local storage.
func (a *App) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decode(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	committed, err := a.Controller.Commit(req.Name)
	if err != nil {
		a.fail(w, err)
		return
	}
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("AI Gen %d", committed.Seed)
	}

	var key string
	if png, err := imgutil.EncodePNG(committed.Image); err == nil {
		if key, err = a.Store.SaveCommitted(r.Context(), name, png); err != nil {
			a.Logger.Warn().Err(err).Msg("handlers: persist committed image")
		}
	} else {
		a.Logger.Warn().Err(err).Msg("handlers: encode committed image")
	}
	a.json(w, http.StatusOK, map[string]any{
		"name":        name,
		"seed":        committed.Seed,
		"storage_key": key,
	})
}

func (a *App) Discard(w http.ResponseWriter, r *http.Request) {
	a.Controller.Discard()
	a.json(w, http.StatusOK, map[string]string{"status": "discarded"})
}
