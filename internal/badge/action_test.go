package badge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartci/internal/core"
	"chartci/internal/storage"
)

type memPublisher struct {
	records []Record
	err     error
}

func (m *memPublisher) Publish(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func coverageArtifact(t *testing.T) storage.Artifact {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coverage.out"), []byte(profile), 0o644))
	return storage.Artifact{Name: DefaultArtifact, Path: dir, Producer: "coverage-report"}
}

func TestActionPublishesFromConsumedArtifact(t *testing.T) {
	pub := &memPublisher{}
	a := &Action{Publisher: pub}

	out, err := a.Run(context.Background(), core.StepContext{
		Job:       "badge-update",
		Step:      core.Step{Uses: "badge", With: map[string]string{"profile": "coverage.out"}},
		Artifacts: map[string]storage.Artifact{DefaultArtifact: coverageArtifact(t)},
	})
	require.NoError(t, err)
	assert.Equal(t, "coverage 87.5% (green) published\n", out)
	require.Len(t, pub.records, 1)
	assert.Equal(t, 87.5, pub.records[0].Coverage)
}

func TestActionWithoutArtifact(t *testing.T) {
	a := &Action{Publisher: &memPublisher{}}
	_, err := a.Run(context.Background(), core.StepContext{Job: "badge-update", Step: core.Step{Uses: "badge"}})
	var missing *core.MissingArtifactError
	assert.ErrorAs(t, err, &missing)
}

func TestActionPublishFailure(t *testing.T) {
	boom := errors.New("remote rejected")
	a := &Action{Publisher: &memPublisher{err: boom}}
	_, err := a.Run(context.Background(), core.StepContext{
		Step:      core.Step{Uses: "badge"},
		Artifacts: map[string]storage.Artifact{DefaultArtifact: coverageArtifact(t)},
	})
	assert.ErrorIs(t, err, boom)
}
