package core

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPipeline []byte

// ParsePipeline parses YAML content into a validated Pipeline
func ParsePipeline(data []byte) (*Pipeline, error) {
	var pipeline Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pipeline); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// LoadPipeline reads a pipeline file from disk
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePipeline(data)
}

// DefaultPipeline returns the built-in format/lint/test/coverage/badge/bot pipeline.
func DefaultPipeline() *Pipeline {
	p, err := ParsePipeline(defaultPipeline)
	if err != nil {
		panic(fmt.Sprintf("embedded pipeline is invalid: %v", err))
	}
	return p
}
