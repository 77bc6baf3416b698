package timeshift

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sanshiro-tv/tunerd/internal/models"
)

// Sidecar is the on-disk shape persisted alongside a ring file: ring
// size, the writer's live position, and the ordered record list (the
// last entry may have Recording == true).
type Sidecar struct {
	RingSize     int64                    `json:"ring_size"`
	CurrentPoint models.CurrentPoint      `json:"current_point"`
	Records      []models.TimeshiftRecord `json:"records"`
}

// SaveSidecar persists doc atomically: write to a temporary file in the
// same directory, then rename over the target, so a crash mid-write never
// leaves a truncated sidecar behind.
func SaveSidecar(path string, doc Sidecar) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("timeshift: encoding sidecar: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("timeshift: writing sidecar temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("timeshift: renaming sidecar into place: %w", err)
	}
	return nil
}

// LoadSidecar reads and parses the sidecar at path. Returns
// os.ErrNotExist-wrapping errors unchanged so callers can distinguish a
// fresh recorder (no sidecar yet) from a genuine read failure.
func LoadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, err
	}
	var doc Sidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		return Sidecar{}, fmt.Errorf("timeshift: parsing sidecar %s: %w", path, err)
	}
	return doc, nil
}

// RingPath and SidecarPath derive the two on-disk file names from a
// recorder's base path (without extension): <ring>.m2ts and <ring>.json.
func RingPath(base string) string {
	return base + ".m2ts"
}

func SidecarPath(base string) string {
	return base + ".json"
}

// BasePath joins dir and name to form the shared base path for a
// recorder's ring and sidecar files.
func BasePath(dir, name string) string {
	return filepath.Join(dir, name)
}
