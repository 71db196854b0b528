package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartci/internal/core"
	"chartci/internal/security"
	"chartci/internal/storage"
)

func summary(id string, status core.RunStatus) core.Summary {
	return core.Summary{
		ID:     id,
		Event:  core.Event{Type: core.EventPush, Branch: "main", IsMain: true},
		Status: status,
		Jobs: map[string]core.JobResult{
			"lint": {Status: core.StatusSuccess},
			"test": {Status: core.StatusFailure},
		},
	}
}

func openSigned(t *testing.T) (*Ledger, string) {
	t.Helper()
	_, priv, err := security.GenerateKeyPair()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := Open(path, priv)
	require.NoError(t, err)
	return l, path
}

func TestNewBlockAndHash(t *testing.T) {
	blk, err := NewBlock(0, summary("r1", core.RunFailure), "")
	require.NoError(t, err)
	h, err := blk.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, h, blk.Hash)
	assert.Equal(t, core.StatusFailure, blk.Jobs["test"])
}

func TestLedgerAppendAndVerify(t *testing.T) {
	l, _ := openSigned(t)

	b1, err := NewBlock(0, summary("r1", core.RunSuccess), "")
	require.NoError(t, err)
	require.NoError(t, l.Append(b1))

	b2, err := NewBlock(1, summary("r2", core.RunFailure), b1.Hash)
	require.NoError(t, err)
	require.NoError(t, l.Append(b2))

	assert.NoError(t, l.VerifyChain())
	assert.Equal(t, 2, l.Len())
}

func TestLedgerRejectsBrokenLink(t *testing.T) {
	l, _ := openSigned(t)
	b1, _ := NewBlock(0, summary("r1", core.RunSuccess), "")
	require.NoError(t, l.Append(b1))

	b2, _ := NewBlock(1, summary("r2", core.RunSuccess), "not-the-last-hash")
	assert.Error(t, l.Append(b2))

	b3, _ := NewBlock(5, summary("r3", core.RunSuccess), b1.Hash)
	assert.Error(t, l.Append(b3))
}

func TestTamperingDetection(t *testing.T) {
	l, _ := openSigned(t)
	b, _ := NewBlock(0, summary("r1", core.RunFailure), "")
	require.NoError(t, l.Append(b))

	l.Blocks()[0].Status = core.RunSuccess
	assert.Error(t, l.VerifyChain())
}

func TestForgedSignatureDetection(t *testing.T) {
	l, _ := openSigned(t)
	b, _ := NewBlock(0, summary("r1", core.RunSuccess), "")
	require.NoError(t, l.Append(b))

	_, other, err := security.GenerateKeyPair()
	require.NoError(t, err)
	l.Blocks()[0].Signature = security.SignData(other, []byte(b.Hash))
	assert.Error(t, l.VerifyChain())
}

func TestLedgerPersistence(t *testing.T) {
	l, path := openSigned(t)
	b, _ := NewBlock(0, summary("r1", core.RunSuccess), "")
	require.NoError(t, l.Append(b))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())
	assert.Equal(t, "r1", reopened.Blocks()[0].RunID)
	assert.NoError(t, reopened.VerifyChain())

	next, _ := NewBlock(1, summary("r2", core.RunSuccess), b.Hash)
	assert.Error(t, reopened.Append(next), "read-only ledger must not append")
}

func TestRecordFromRunner(t *testing.T) {
	l, _ := openSigned(t)

	p := &core.Pipeline{Jobs: []*core.Job{
		{Name: "bot-run", On: []core.EventType{core.EventSchedule}, Steps: []core.Step{{Uses: "noop"}}},
	}}
	r := core.NewRunner(nil, storage.NewArtifactStore(), nil)
	r.Register("noop", core.ActionFunc(func(_ context.Context, _ core.StepContext) (string, error) { return "", nil }))
	r.Recorder = l

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), p, core.Event{Type: core.EventSchedule})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, l.Len())
	assert.NoError(t, l.VerifyChain())
	assert.Equal(t, core.StatusSuccess, l.Blocks()[0].Jobs["bot-run"])
}
