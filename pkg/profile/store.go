// Package profile persists named zone selections and the theme preference.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const currentVersion = 1

// ErrNotFound is returned for an unknown profile id.
var ErrNotFound = errors.New("profile not found")

// Theme is the display theme preference.
type Theme string

// Themes.
const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Profile is a saved source zone with its targets.
type Profile struct {
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	ID              string    `json:"id"`
	Name            string    `json:"name" validate:"required,max=80"`
	FromTimezone    string    `json:"fromTimezone" validate:"required"`
	TargetTimezones []string  `json:"targetTimezones" validate:"min=1,dive,required"`
}

type document struct {
	Theme    Theme     `json:"theme"`
	Profiles []Profile `json:"profiles"`
	Version  int       `json:"version"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Store is a JSON-file backed profile list. It is safe for concurrent use.
type Store struct {
	logger *slog.Logger
	now    func() time.Time
	path   string
	doc    document
	mu     sync.Mutex
}

// Open loads the store at path, starting empty when the file does not exist.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
		doc:    document{Version: currentVersion, Theme: Light},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no profile file found", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("decoding profiles %s: %w", path, err)
	}
	if s.doc.Version > currentVersion {
		logger.Warn("profile file written by a newer version", "path", path, "version", s.doc.Version)
	}
	if s.doc.Theme != Dark {
		s.doc.Theme = Light
	}
	logger.Debug("loaded profiles", "path", path, "count", len(s.doc.Profiles))
	return s, nil
}

// List returns every profile in insertion order.
func (s *Store) List() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Profile, len(s.doc.Profiles))
	for i, p := range s.doc.Profiles {
		out[i] = clone(p)
	}
	return out
}

// Get returns the profile with id.
func (s *Store) Get(id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(s.doc.Profiles[i]), nil
}

// Find returns the first profile whose id or name matches key (names
// compare case-insensitively).
func (s *Store) Find(key string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.doc.Profiles {
		if p.ID == key || strings.EqualFold(p.Name, key) {
			return clone(p), nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Save adds a profile under a new id.
func (s *Store) Save(name, from string, targets []string) (Profile, error) {
	now := s.now().UTC()
	p := Profile{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(name),
		FromTimezone:    strings.TrimSpace(from),
		TargetTimezones: cleanTargets(targets),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validate.Struct(p); err != nil {
		return Profile{}, fmt.Errorf("invalid profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Profiles = append(s.doc.Profiles, p)
	if err := s.flush(); err != nil {
		s.doc.Profiles = s.doc.Profiles[:len(s.doc.Profiles)-1]
		return Profile{}, err
	}
	s.logger.Info("profile saved", "id", p.ID, "name", p.Name)
	return clone(p), nil
}

// Update replaces the name and zones of an existing profile.
func (s *Store) Update(p Profile) (Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.FromTimezone = strings.TrimSpace(p.FromTimezone)
	p.TargetTimezones = cleanTargets(p.TargetTimezones)
	if err := validate.Struct(p); err != nil {
		return Profile{}, fmt.Errorf("invalid profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(p.ID)
	if i < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	old := s.doc.Profiles[i]
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = s.now().UTC()
	s.doc.Profiles[i] = p
	if err := s.flush(); err != nil {
		s.doc.Profiles[i] = old
		return Profile{}, err
	}
	return clone(p), nil
}

// Delete removes the profile with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	before := slices.Clone(s.doc.Profiles)
	s.doc.Profiles = slices.Delete(s.doc.Profiles, i, i+1)
	if err := s.flush(); err != nil {
		s.doc.Profiles = before
		return err
	}
	s.logger.Info("profile deleted", "id", id)
	return nil
}

// Theme returns the stored theme preference.
func (s *Store) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Theme
}

// SetTheme stores the theme preference.
func (s *Store) SetTheme(t Theme) error {
	if t != Light && t != Dark {
		return fmt.Errorf("unknown theme %q", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.doc.Theme
	s.doc.Theme = t
	if err := s.flush(); err != nil {
		s.doc.Theme = old
		return err
	}
	return nil
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.doc.Profiles, func(p Profile) bool { return p.ID == id })
}

// flush writes the document atomically. Callers hold s.mu.
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("creating profile directory: %w", err)
	}
	s.doc.Version = currentVersion
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profiles-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp profile file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			s.logger.Debug("failed to remove temp file", "error", err)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("setting profile file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing profiles: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("syncing profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing profiles: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing profile file: %w", err)
	}
	return nil
}

func cleanTargets(targets []string) []string {
	var out []string
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func clone(p Profile) Profile {
	p.TargetTimezones = slices.Clone(p.TargetTimezones)
	return p
}
