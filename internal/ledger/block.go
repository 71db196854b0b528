package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"chartci/internal/core"
)

// Block is a tamper-evident record of one finished run
type Block struct {
	Index     int                       `json:"index"`
	Timestamp string                    `json:"timestamp"`
	RunID     string                    `json:"runId"`
	Event     core.Event                `json:"event"`
	Status    core.RunStatus            `json:"status"`
	Cancelled bool                      `json:"cancelled,omitempty"`
	Jobs      map[string]core.JobStatus `json:"jobs"`
	PrevHash  string                    `json:"prevHash"`
	Hash      string                    `json:"hash"`
	Signature string                    `json:"signature"`
	PubKey    string                    `json:"pubKey"`
}

// canonicalData returns the JSON bytes used to compute the block hash.
// It excludes Hash, Signature and PubKey.
func (b *Block) canonicalData() ([]byte, error) {
	view := struct {
		Index     int                       `json:"index"`
		Timestamp string                    `json:"timestamp"`
		RunID     string                    `json:"runId"`
		Event     core.Event                `json:"event"`
		Status    core.RunStatus            `json:"status"`
		Cancelled bool                      `json:"cancelled"`
		Jobs      map[string]core.JobStatus `json:"jobs"`
		PrevHash  string                    `json:"prevHash"`
	}{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		RunID:     b.RunID,
		Event:     b.Event,
		Status:    b.Status,
		Cancelled: b.Cancelled,
		Jobs:      b.Jobs,
		PrevHash:  b.PrevHash,
	}
	return json.Marshal(view)
}

// ComputeHash calculates SHA256 over canonicalData
func (b *Block) ComputeHash() (string, error) {
	data, err := b.canonicalData()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewBlock builds an unsigned block from a run summary
func NewBlock(index int, s core.Summary, prevHash string) (*Block, error) {
	jobs := make(map[string]core.JobStatus, len(s.Jobs))
	for name, res := range s.Jobs {
		jobs[name] = res.Status
	}
	blk := &Block{
		Index:     index,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RunID:     s.ID,
		Event:     s.Event,
		Status:    s.Status,
		Cancelled: s.Cancelled,
		Jobs:      jobs,
		PrevHash:  prevHash,
	}
	h, err := blk.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}
	blk.Hash = h
	return blk, nil
}
