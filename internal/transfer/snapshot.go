// Package transfer exports and imports the whole dormitory structure.
package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/model"
	"dormitory-housing-backend/internal/structure"
)

const maxNameLength = 128

// Snapshot is the portable form of every dormitory and its rooms. It holds
// no occupancy and no applications.
type Snapshot struct {
	Dormitories []DormitorySnapshot `json:"dormitories" yaml:"dormitories"`
}

// DormitorySnapshot is one dormitory inside a Snapshot.
type DormitorySnapshot struct {
	Name    string           `json:"name" yaml:"name"`
	Address string           `json:"address" yaml:"address"`
	Rooms   []model.RoomSpec `json:"rooms" yaml:"rooms"`
}

// Format is a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a query value onto a Format. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", apperr.Validation("unsupported snapshot format %q (use json or yaml)", raw)
	}
}

// FormatFromContentType picks the decoder for an uploaded snapshot.
func FormatFromContentType(contentType string) (Format, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", apperr.Validation("invalid content type %q", contentType)
	}
	switch mediaType {
	case "application/json", "text/json":
		return FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML, nil
	default:
		return "", apperr.Validation("unsupported snapshot content type %q", mediaType)
	}
}

// FormatFromFilename guesses the format of an uploaded file by extension.
func FormatFromFilename(name string) (Format, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON, true
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML, true
	default:
		return "", false
	}
}

// ContentType is the media type written for f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Encode writes snap to w.
func Encode(w io.Writer, snap *Snapshot, f Format) error {
	if f == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Decode reads a snapshot. Unknown fields are rejected so a typo cannot
// silently drop data.
func Decode(r io.Reader, f Format) (*Snapshot, error) {
	var snap Snapshot
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil {
			if err == io.EOF {
				return nil, apperr.Validation("snapshot is empty")
			}
			return nil, apperr.Validation("malformed yaml snapshot: %v", err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			if err == io.EOF {
				return nil, apperr.Validation("snapshot is empty")
			}
			return nil, apperr.Validation("malformed json snapshot: %v", err)
		}
	}
	return &snap, nil
}

// Validate checks the whole snapshot and returns a normalised copy. The
// first problem is reported with its position, e.g. "dormitories[2].rooms[0]".
func Validate(snap *Snapshot) (*Snapshot, error) {
	if snap == nil || snap.Dormitories == nil {
		return nil, apperr.Validation("dormitories is required")
	}

	out := &Snapshot{Dormitories: make([]DormitorySnapshot, len(snap.Dormitories))}
	seen := make(map[string]int, len(snap.Dormitories))
	for i, d := range snap.Dormitories {
		d.Name = strings.TrimSpace(d.Name)
		d.Address = strings.TrimSpace(d.Address)
		switch {
		case d.Name == "":
			return nil, apperr.Validation("dormitories[%d]: name is required", i)
		case len(d.Name) > maxNameLength:
			return nil, apperr.Validation("dormitories[%d]: name is longer than %d characters", i, maxNameLength)
		}
		if first, dup := seen[d.Name]; dup {
			return nil, apperr.Validation("dormitories[%d]: name %q duplicates dormitories[%d]", i, d.Name, first)
		}
		seen[d.Name] = i

		rooms, err := structure.CheckRoomSpecs(fmt.Sprintf("dormitories[%d].rooms", i), d.Rooms)
		if err != nil {
			return nil, err
		}
		d.Rooms = rooms
		out.Dormitories[i] = d
	}
	return out, nil
}
