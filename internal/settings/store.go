// Package settings persists panel configuration as a small JSON document.
// The store recognizes a fixed key set; writes are validated synchronously
// and a corrupted file on disk falls back to the documented defaults instead
// of failing startup.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"genpanel/internal/domain"
)

// Recognized keys.
const (
	KeyAPIKey      = "api_key"
	KeyModel       = "model"
	KeyAspectRatio = "aspect_ratio"
	KeyBatchSize   = "batch_size"
)

// AspectRatioNative selects the aspect ratio computed from the canvas instead
// of a fixed one.
const AspectRatioNative = "Canvas (Native)"

const (
	DefaultModel       = "gemini-2.5-flash-image"
	DefaultAspectRatio = AspectRatioNative
	DefaultBatchSize   = 1
	MaxBatchSize       = 4
)

var knownModels = map[string]struct{}{
	"gemini-2.5-flash-image": {},
	"gemini-2.5-pro":         {},
	"gemini-3-pro-preview":   {},
}

var knownAspectRatios = map[string]struct{}{
	AspectRatioNative: {},
	"1:1":             {},
	"2:3":             {},
	"3:2":             {},
	"3:4":             {},
	"4:3":             {},
	"4:5":             {},
	"5:4":             {},
	"9:16":            {},
	"16:9":            {},
	"21:9":            {},
}

// Store owns the settings file. Reads and writes are safe for concurrent use;
// every successful Set is flushed to disk before it returns.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
	logger zerolog.Logger
}

// NewStore loads settings from path, creating the file with defaults when it
// does not exist. A file that cannot be parsed is logged and replaced by the
// defaults; loading never fails on corrupted content.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings: ensure directory: %w", err)
	}

	s := &Store{path: path, values: defaults(), logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.save(); err != nil {
			return nil, err
		}
	case err != nil:
		logger.Error().Err(err).Str("path", path).Msg("settings: read failed; using defaults")
	default:
		var loaded map[string]any
		if err := json.Unmarshal(data, &loaded); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("settings: corrupted file; using defaults")
			break
		}
		for k, v := range loaded {
			if err := validate(k, v); err != nil {
				logger.Warn().Err(err).Str("key", k).Msg("settings: ignoring stored value")
				continue
			}
			s.values[k] = normalize(k, v)
		}
	}
	return s, nil
}

func defaults() map[string]any {
	return map[string]any{
		KeyAPIKey:      "",
		KeyModel:       DefaultModel,
		KeyAspectRatio: DefaultAspectRatio,
		KeyBatchSize:   DefaultBatchSize,
	}
}

// Set validates and persists one key/value pair. Unknown keys and values of
// the wrong shape are rejected with a validation error before anything is
// written.
func (s *Store) Set(key string, value any) error {
	if err := validate(key, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = normalize(key, value)
	return s.save()
}

// validate enforces the recognized key set and per-key value shapes. Values
// must additionally be representable as JSON, which every accepted shape is.
func validate(key string, value any) error {
	switch key {
	case KeyAPIKey:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s must be a string", domain.ErrInvalidSettingValue, key)
		}
	case KeyModel:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", domain.ErrInvalidSettingValue, key)
		}
		if _, ok := knownModels[str]; !ok {
			return fmt.Errorf("%w: unknown model %q", domain.ErrInvalidSettingValue, str)
		}
	case KeyAspectRatio:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", domain.ErrInvalidSettingValue, key)
		}
		if _, ok := knownAspectRatios[str]; !ok {
			return fmt.Errorf("%w: unknown aspect ratio %q", domain.ErrInvalidSettingValue, str)
		}
	case KeyBatchSize:
		n, ok := asInt(value)
		if !ok {
			return fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidSettingValue, key)
		}
		if n < 1 || n > MaxBatchSize {
			return fmt.Errorf("%w: %s must be between 1 and %d", domain.ErrInvalidSettingValue, key, MaxBatchSize)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidSettingKey, key)
	}
	return nil
}

// normalize coerces JSON-decoded numbers to int for integer keys.
func normalize(key string, value any) any {
	if key == KeyBatchSize {
		if n, ok := asInt(value); ok {
			return n
		}
	}
	return value
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// APIKey returns the stored provider credential, possibly empty.
func (s *Store) APIKey() string { return s.getString(KeyAPIKey) }

// Model returns the configured generation model identifier.
func (s *Store) Model() string { return s.getString(KeyModel) }

// AspectRatio returns the configured aspect-ratio strategy.
func (s *Store) AspectRatio() string { return s.getString(KeyAspectRatio) }

// BatchSize returns the configured batch size, clamped to the valid range.
func (s *Store) BatchSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := asInt(s.values[KeyBatchSize]); ok && n >= 1 && n <= MaxBatchSize {
		return n
	}
	return DefaultBatchSize
}

func (s *Store) getString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if str, ok := s.values[key].(string); ok {
		return str
	}
	return ""
}

// Snapshot returns a copy of all stored values with the credential redacted
// to a presence flag.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	out[KeyAPIKey] = s.values[KeyAPIKey] != ""
	return out
}

// save writes the current values under the store's mutex.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("settings: write file: %w", err)
	}
	return nil
}
