// Package store implements the semantic index behind the long-term and
// permanent memory tiers: SQLite rows with embedded vectors, ANN search
// via the sqlite-vec extension when available and brute-force cosine
// otherwise.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"nexus/internal/embedding"
	"nexus/internal/logging"
	"nexus/internal/types"
)

// Tier selects one of the two indexed memory tiers.
type Tier string

const (
	// TierLongTerm holds important messages, capped per chat and
	// evicted oldest-first by insertion time. The FIFO policy is a
	// documented limitation carried over from the reference behavior.
	TierLongTerm Tier = "long_term"
	// TierPermanent holds critical messages and is never pruned.
	TierPermanent Tier = "permanent"
)

// Entry is one indexed message.
type Entry struct {
	ID        string
	ChatID    string
	Role      types.Role
	Content   string
	CreatedAt time.Time
}

// Index is the SQLite-backed semantic index.
type Index struct {
	db          *sql.DB
	engine      embedding.Engine
	maxLongTerm int
	vectorExt   bool
	mu          sync.Mutex
	log         *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	chat_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding BLOB,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_entries_tier_chat ON entries(tier, chat_id);
`

// Open initializes the index database at path (":memory:" for tests).
// maxLongTerm is the per-chat cap M of the long-term tier.
func Open(path string, engine embedding.Engine, maxLongTerm int) (*Index, error) {
	log := logging.L("store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set journal_mode=WAL", zap.Error(err))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	ix := &Index{
		db:          db,
		engine:      engine,
		maxLongTerm: maxLongTerm,
		log:         log,
	}
	ix.detectVecExtension()
	if ix.vectorExt {
		log.Info("sqlite-vec extension detected, using ANN distance")
	} else {
		log.Debug("sqlite-vec unavailable, using brute-force cosine")
	}
	return ix, nil
}

// detectVecExtension probes for sqlite-vec by calling vec_version().
func (ix *Index) detectVecExtension() {
	var v string
	if err := ix.db.QueryRow("SELECT vec_version()").Scan(&v); err == nil {
		ix.vectorExt = true
	}
}

// Add embeds the entry content and inserts it into the given tier, then
// enforces the long-term per-chat cap by deleting oldest-by-insertion.
func (ix *Index) Add(ctx context.Context, tier Tier, e Entry) error {
	vec, err := ix.engine.Embed(ctx, e.Content)
	if err != nil {
		return fmt.Errorf("failed to embed content: %w", err)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err = ix.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (id, chat_id, tier, role, content, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChatID, string(tier), string(e.Role), e.Content,
		encodeVectorBlob(vec), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	if tier == TierLongTerm {
		if err := ix.enforceCap(ctx, e.ChatID); err != nil {
			ix.log.Warn("long-term cap enforcement failed", zap.Error(err))
		}
	}
	return nil
}

// enforceCap deletes the oldest long-term entries of the chat beyond the
// cap. Eviction is strictly insertion order, not relevance order.
func (ix *Index) enforceCap(ctx context.Context, chatID string) error {
	_, err := ix.db.ExecContext(ctx,
		`DELETE FROM entries
		 WHERE tier = ? AND chat_id = ? AND rowid NOT IN (
			SELECT rowid FROM entries
			WHERE tier = ? AND chat_id = ?
			ORDER BY rowid DESC LIMIT ?
		 )`,
		string(TierLongTerm), chatID, string(TierLongTerm), chatID, ix.maxLongTerm,
	)
	return err
}

// Search returns the k entries of the chat's tier most similar to query,
// best first.
func (ix *Index) Search(ctx context.Context, tier Tier, chatID, query string, k int) ([]Entry, error) {
	if k <= 0 {
		k = 5
	}

	queryVec, err := ix.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.vectorExt {
		entries, err := ix.searchVec(ctx, tier, chatID, queryVec, k)
		if err == nil {
			return entries, nil
		}
		ix.log.Debug("vec search failed, falling back to brute force", zap.Error(err))
	}
	return ix.searchBruteForce(ctx, tier, chatID, queryVec, k)
}

// searchVec ranks with sqlite-vec's cosine distance in SQL.
func (ix *Index) searchVec(ctx context.Context, tier Tier, chatID string, queryVec []float32, k int) ([]Entry, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at,
			vec_distance_cosine(embedding, ?) AS distance
		 FROM entries
		 WHERE tier = ? AND chat_id = ? AND embedding IS NOT NULL
		 ORDER BY distance ASC
		 LIMIT ?`,
		encodeVectorBlob(queryVec), string(tier), chatID, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var distance float64
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Role, &e.Content, &e.CreatedAt, &distance); err != nil {
			ix.log.Warn("failed to scan entry", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// searchBruteForce computes cosine similarity in Go over all candidate rows.
func (ix *Index) searchBruteForce(ctx context.Context, tier Tier, chatID string, queryVec []float32, k int) ([]Entry, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, embedding, created_at
		 FROM entries
		 WHERE tier = ? AND chat_id = ? AND embedding IS NOT NULL`,
		string(tier), chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		entry Entry
		sim   float64
	}
	var candidates []scored

	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Role, &e.Content, &blob, &e.CreatedAt); err != nil {
			ix.log.Warn("failed to scan entry", zap.Error(err))
			continue
		}
		vec := decodeVectorBlob(blob)
		sim, err := embedding.Cosine(queryVec, vec)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{entry: e, sim: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	entries := make([]Entry, len(candidates))
	for i, c := range candidates {
		entries[i] = c.entry
	}
	return entries, nil
}

// Count returns the number of entries in a chat's tier.
func (ix *Index) Count(ctx context.Context, tier Tier, chatID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var n int
	err := ix.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE tier = ? AND chat_id = ?",
		string(tier), chatID,
	).Scan(&n)
	return n, err
}

// ClearChat deletes all indexed entries of a chat across both tiers.
func (ix *Index) ClearChat(ctx context.Context, chatID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.db.ExecContext(ctx, "DELETE FROM entries WHERE chat_id = ?", chatID)
	return err
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// encodeVectorBlob serializes an embedding as little-endian float32 bytes,
// the layout sqlite-vec expects.
func encodeVectorBlob(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

// decodeVectorBlob is the inverse of encodeVectorBlob.
func decodeVectorBlob(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}
