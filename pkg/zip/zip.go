// Package zip builds in-memory archives for session export downloads.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Asset is one file placed into an archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets writes the assets into a zip archive held in memory, in the
// order given. Assets with empty filenames are skipped.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		if asset.Filename == "" {
			continue
		}
		w, err := zw.Create(asset.Filename)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
