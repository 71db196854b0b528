package ledger

import (
	"bufio"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"chartci/internal/core"
	"chartci/internal/security"
)

// Ledger is an append-only JSONL history of finished runs.
type Ledger struct {
	mu     sync.Mutex
	blocks []*Block
	path   string
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

// Open loads an existing ledger file or starts an empty one. Appends are
// signed with priv; a nil key opens the ledger read-only.
func Open(path string, priv ed25519.PrivateKey) (*Ledger, error) {
	l := &Ledger{path: path, priv: priv}
	if priv != nil {
		l.pub = priv.Public().(ed25519.PublicKey)
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var blk Block
		if err := json.Unmarshal(sc.Bytes(), &blk); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry %d: %w", len(l.blocks), err)
		}
		l.blocks = append(l.blocks, &blk)
	}
	return l, sc.Err()
}

// Append signs the block, persists it and keeps it in memory.
func (l *Ledger) Append(b *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(b)
}

func (l *Ledger) appendLocked(b *Block) error {
	if len(l.priv) == 0 {
		return errors.New("ledger opened without a signing key")
	}
	if b.Index != len(l.blocks) {
		return fmt.Errorf("index mismatch: expected %d, got %d", len(l.blocks), b.Index)
	}
	if len(l.blocks) > 0 {
		if last := l.blocks[len(l.blocks)-1]; b.PrevHash != last.Hash {
			return fmt.Errorf("prevHash mismatch: expected %s, got %s", last.Hash, b.PrevHash)
		}
	}
	h, err := b.ComputeHash()
	if err != nil {
		return fmt.Errorf("cannot recompute block hash: %w", err)
	}
	b.Hash = h
	b.Signature = security.SignData(l.priv, []byte(b.Hash))
	b.PubKey = hex.EncodeToString(l.pub)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(b); err != nil {
		return fmt.Errorf("write ledger file: %w", err)
	}

	l.blocks = append(l.blocks, b)
	return nil
}

// Record appends a block for a finished run. It satisfies core.Recorder.
func (l *Ledger) Record(run *core.Run) error {
	summary := run.Summary()

	l.mu.Lock()
	defer l.mu.Unlock()
	idx, prev := len(l.blocks), ""
	if idx > 0 {
		prev = l.blocks[idx-1].Hash
	}
	blk, err := NewBlock(idx, summary, prev)
	if err != nil {
		return err
	}
	return l.appendLocked(blk)
}

// Blocks returns a copy of the block list.
func (l *Ledger) Blocks() []*Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Block(nil), l.blocks...)
}

// Len returns the number of blocks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}
