package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LogStorage manages saving step logs to files, one directory per run
type LogStorage struct {
	BaseDir string
}

// NewLogStorage creates a new log storage handler
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir}
}

// RunDir is the directory holding every log of a run.
func (ls *LogStorage) RunDir(runID string) string {
	return filepath.Join(ls.BaseDir, sanitize(runID))
}

// SaveLog saves the output of one step and returns the file path
func (ls *LogStorage) SaveLog(runID, job string, index int, step, output string) (string, error) {
	dir := filepath.Join(ls.RunDir(runID), sanitize(job))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%02d_%s.log", index+1, sanitize(step))
	filePath := filepath.Join(dir, filename)
	if err := os.WriteFile(filePath, []byte(output), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// SaveManifest writes the artifacts a run produced next to its logs.
func (ls *LogStorage) SaveManifest(runID string, artifacts []Artifact) (string, error) {
	dir := ls.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "artifacts.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// sanitize removes special characters from names for filenames
func sanitize(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 || string(clean) == "." || string(clean) == ".." {
		return "step"
	}
	return string(clean)
}
