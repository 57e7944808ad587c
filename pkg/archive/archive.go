// Package archive indexes compacted session recaps so the facilitator can
// recall what happened many sessions ago. Search is vector-based when an
// embedding provider is configured and falls back to substring matching
// otherwise.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	sqlite_vec.Auto()
}

// Entry is one archived session recap.
type Entry struct {
	Session   int       `json:"session"`
	Summary   string    `json:"summary"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive stores and searches session recaps for one campaign.
type Archive struct {
	db       *sql.DB
	provider EmbeddingProvider
	logger   zerolog.Logger
}

// Open opens (creating if needed) the archive database at path. provider may
// be nil.
func Open(path string, provider EmbeddingProvider, logger zerolog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	a := &Archive{db: db, provider: provider, logger: logger}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS recaps (
			session INTEGER PRIMARY KEY,
			summary TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}

	if a.provider != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS recap_embeddings USING vec0(
				session INTEGER PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, a.provider.Dimension())
		if _, err := a.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Index stores a session recap, replacing any earlier recap for the same
// session. Embedding failures degrade to keyword-only search for that entry.
func (a *Archive) Index(ctx context.Context, session int, summary string) error {
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("summary is required")
	}

	_, err := a.db.Exec(`
		INSERT INTO recaps (session, summary, created_at) VALUES (?, ?, ?)
		ON CONFLICT(session) DO UPDATE SET summary = excluded.summary,
			created_at = excluded.created_at
	`, session, summary, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store recap: %w", err)
	}

	if a.provider == nil {
		return nil
	}

	embedding, err := a.provider.GenerateEmbedding(ctx, summary)
	if err != nil {
		a.logger.Warn().Int("session", session).Err(err).Msg("Embedding failed, recap stored without vector")
		return nil
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = a.db.Exec(
		"INSERT OR REPLACE INTO recap_embeddings (session, embedding) VALUES (?, ?)",
		session, string(embeddingJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store recap embedding: %w", err)
	}
	return nil
}

// Search returns recaps relevant to the query, best first.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 3
	}

	if a.provider != nil {
		entries, err := a.vectorSearch(ctx, query, limit)
		if err == nil {
			return entries, nil
		}
		a.logger.Warn().Err(err).Msg("Vector search failed, falling back to keyword search")
	}
	return a.keywordSearch(query, limit)
}

func (a *Archive) vectorSearch(ctx context.Context, query string, limit int) ([]Entry, error) {
	embedding, err := a.provider.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query embedding: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT r.session, r.summary, r.created_at,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM recap_embeddings e
		JOIN recaps r ON r.session = e.session
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		var distance float64
		if err := rows.Scan(&e.Session, &e.Summary, &created, &distance); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		e.Score = 1.0 - distance
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (a *Archive) keywordSearch(query string, limit int) ([]Entry, error) {
	rows, err := a.db.Query(`
		SELECT session, summary, created_at FROM recaps
		WHERE summary LIKE ?
		ORDER BY session DESC
		LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search recaps: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Session, &e.Summary, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Recap returns the stored summary for one session.
func (a *Archive) Recap(session int) (Entry, error) {
	var e Entry
	var created int64
	err := a.db.QueryRow(
		"SELECT session, summary, created_at FROM recaps WHERE session = ?", session,
	).Scan(&e.Session, &e.Summary, &created)
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("no recap for session %d", session)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load recap: %w", err)
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}
