package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shark8848/convmem-go-sdk/core"
	"github.com/shark8848/convmem-go-sdk/stage"
)

// ErrNoSession reports that a snapshot holds no data for this session. It is
// a "no prior session" condition, not a failure.
var ErrNoSession = errors.New("memory: no prior session in snapshot")

// snapshotFile is the on-disk snapshot document, keyed by session identifier
// so several sessions can share one file.
type snapshotFile struct {
	Sessions map[string]*sessionSnapshot `json:"sessions"`
}

// sessionSnapshot holds one session's turns (digests included, embeddings
// omitted) and stage state.
type sessionSnapshot struct {
	SessionID    string          `json:"session_id"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
	Turns        []*core.Turn    `json:"turns"`
	Stage        *stage.Snapshot `json:"stage,omitempty"`
}

// Save serializes the session turns and stage state to path, merging with
// any other sessions already present in the file.
func (f *Facade) Save(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := snapshotFile{Sessions: map[string]*sessionSnapshot{}}
	if data, err := os.ReadFile(path); err == nil {
		// Keep other sessions if the existing file parses; a corrupt file is
		// replaced wholesale.
		var existing snapshotFile
		if json.Unmarshal(data, &existing) == nil && existing.Sessions != nil {
			doc.Sessions = existing.Sessions
		}
	}

	snap := &sessionSnapshot{
		SessionID:    f.sessionID,
		CreatedAt:    f.createdAt,
		LastActiveAt: f.lastActiveAt,
		Turns:        f.store.All(),
	}
	if f.tracker != nil {
		s := f.tracker.Snapshot()
		snap.Stage = &s
	}
	doc.Sessions[f.sessionID] = snap

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("memory: write snapshot: %w", err)
	}

	log.Printf("[MEMORY] saved %d turns to %s (session=%s)", len(snap.Turns), path, f.sessionID)
	return nil
}

// Load fully replaces the in-memory session state with the snapshot at path.
// A missing file or a snapshot without this session's key yields
// ErrNoSession. A corrupt snapshot yields a decode error; in both cases the
// prior in-memory state is left untouched.
func (f *Facade) Load(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoSession
		}
		return fmt.Errorf("memory: read snapshot: %w", err)
	}

	var doc snapshotFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("memory: decode snapshot: %w", err)
	}
	snap, ok := doc.Sessions[f.sessionID]
	if !ok {
		return ErrNoSession
	}

	f.store.Restore(snap.Turns)
	if !snap.CreatedAt.IsZero() {
		f.createdAt = snap.CreatedAt
	}
	if !snap.LastActiveAt.IsZero() {
		f.lastActiveAt = snap.LastActiveAt
	}
	if f.tracker != nil && snap.Stage != nil {
		f.tracker.Restore(*snap.Stage)
	}
	if f.cache != nil {
		f.cache.Clear()
	}
	f.turnsSinceSummary = 0
	f.bytesSinceSummary = 0

	// Rebuild the similarity index from the restored turns. Failure here
	// degrades retrieval, it does not fail the load.
	if f.index != nil {
		if err := f.index.Clear(ctx); err != nil {
			f.degrade(fmt.Sprintf("index clear on load failed: %v", err))
		} else if err := f.index.IndexAll(ctx, f.store.All()); err != nil {
			f.degrade(fmt.Sprintf("index rebuild on load failed: %v", err))
		}
	}

	log.Printf("[MEMORY] loaded %d turns from %s (session=%s)", len(snap.Turns), path, f.sessionID)
	return nil
}
