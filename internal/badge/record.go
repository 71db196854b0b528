// Package badge derives coverage badge metadata from a coverage profile and
// publishes it to durable storage.
package badge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/tools/cover"
)

// ErrEmptyProfile is returned for a profile without any statements.
var ErrEmptyProfile = errors.New("coverage profile has no statements")

// Record is the badge metadata committed after a successful main-branch run.
type Record struct {
	Name     string  `json:"name"`
	Coverage float64 `json:"coverage"`
	Color    string  `json:"color"`
}

// NewRecord rounds pct to one decimal and picks its color.
func NewRecord(name string, pct float64) Record {
	pct = math.Round(pct*10) / 10
	return Record{Name: name, Coverage: pct, Color: ColorFor(pct)}
}

// ColorFor maps a percentage onto the shields.io color scale.
func ColorFor(pct float64) string {
	switch {
	case pct >= 90:
		return "brightgreen"
	case pct >= 80:
		return "green"
	case pct >= 70:
		return "yellowgreen"
	case pct >= 60:
		return "yellow"
	case pct >= 50:
		return "orange"
	default:
		return "red"
	}
}

// Message is the badge's right-hand text.
func (r Record) Message() string {
	return strconv.FormatFloat(r.Coverage, 'f', 1, 64) + "%"
}

// Endpoint renders the record as a shields.io endpoint document.
func (r Record) Endpoint() ([]byte, error) {
	doc := struct {
		SchemaVersion int    `json:"schemaVersion"`
		Label         string `json:"label"`
		Message       string `json:"message"`
		Color         string `json:"color"`
	}{1, r.Name, r.Message(), r.Color}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FromProfile computes statement coverage from a Go cover profile.
func FromProfile(path, name string) (Record, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return Record{}, fmt.Errorf("parse coverage profile: %w", err)
	}
	var total, covered int64
	for _, p := range profiles {
		for _, b := range p.Blocks {
			total += int64(b.NumStmt)
			if b.Count > 0 {
				covered += int64(b.NumStmt)
			}
		}
	}
	if total == 0 {
		return Record{}, fmt.Errorf("%s: %w", path, ErrEmptyProfile)
	}
	return NewRecord(name, float64(covered)*100/float64(total)), nil
}
