package handlers

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/websocket"

	"genpanel/internal/domain"
)

// Cross-origin access is governed by the CORS middleware; the daemon binds
// locally, so the upgrader itself accepts any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wireArtifact struct {
	Seed       int32  `json:"seed"`
	BatchIndex int    `json:"batch_index"`
	PNGBase64  string `json:"png_base64,omitempty"`
}

type wireEvent struct {
	Kind  string        `json:"kind"`
	Text  string        `json:"text,omitempty"`
	Image *wireArtifact `json:"image,omitempty"`
}

func toWire(ev domain.Event) wireEvent {
	out := wireEvent{Kind: string(ev.Kind), Text: ev.Text}
	if ev.Artifact != nil {
		out.Image = &wireArtifact{
			Seed:       ev.Artifact.Seed,
			BatchIndex: ev.Artifact.BatchIndex,
			PNGBase64:  base64.StdEncoding.EncodeToString(ev.Artifact.PNG),
		}
	}
	return out
}

// Events upgrades to a websocket and forwards the session event stream in
// order until the client disconnects.
func (a *App) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("handlers: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close and ping handling keep working; any read
	// error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	queue, unsubscribe := a.Controller.Subscribe()
	defer unsubscribe()

	for {
		ev, ok := queue.Pop(ctx)
		if !ok {
			return
		}
		if err := conn.WriteJSON(toWire(ev)); err != nil {
			a.Logger.Debug().Err(err).Msg("handlers: event stream write failed")
			return
		}
	}
}
