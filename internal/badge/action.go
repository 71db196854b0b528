package badge

import (
	"context"
	"fmt"
	"path/filepath"

	"chartci/internal/core"
)

// DefaultArtifact is the artifact the action reads its profile from.
const DefaultArtifact = "coverage-report"

// Action is the `badge` pipeline step: it reads the cover profile from the
// consumed coverage artifact and publishes the derived record.
type Action struct {
	Publisher Publisher
	Label     string
}

func (a *Action) Run(ctx context.Context, sc core.StepContext) (string, error) {
	name := sc.Step.With["artifact"]
	if name == "" {
		name = DefaultArtifact
	}
	art, ok := sc.Artifacts[name]
	if !ok {
		return "", &core.MissingArtifactError{Job: sc.Job, Artifact: name}
	}
	profile := sc.Step.With["profile"]
	if profile == "" {
		profile = "coverage.out"
	}
	label := a.Label
	if label == "" {
		label = "coverage"
	}

	rec, err := FromProfile(filepath.Join(art.Path, profile), label)
	if err != nil {
		return "", err
	}
	if err := a.Publisher.Publish(ctx, rec); err != nil {
		return "", fmt.Errorf("publish badge: %w", err)
	}
	return fmt.Sprintf("%s %s (%s) published\n", rec.Name, rec.Message(), rec.Color), nil
}
