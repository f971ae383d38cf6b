package handlers

import (
	"fmt"
	"net/http"

	"genpanel/pkg/zip"
)

// ExportZip downloads every image produced by the most recent batch as a zip
// archive.
func (a *App) ExportZip(w http.ResponseWriter, r *http.Request) {
	artifacts := a.Controller.Artifacts()
	if len(artifacts) == 0 {
		a.json(w, http.StatusNotFound, map[string]string{"error": "no generated images to export"})
		return
	}
	assets := make([]zip.Asset, 0, len(artifacts))
	for _, art := range artifacts {
		if len(art.PNG) == 0 {
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("seed_%d_item_%d.png", art.Seed, art.BatchIndex),
			MIME:     "image/png",
			Data:     art.PNG,
		})
	}
	data, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="generated_images.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
