package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

var (
	_ types.VectorStore = (*VectorStore)(nil)
	_ types.VectorStore = (*MemoryStore)(nil)
)

type VectorStoreConfig struct {
	ConnString   string
	TableName    string
	VectorDim    int
	QueryTimeout time.Duration
}

// VectorStore keeps meeting chunks in Postgres with pgvector embeddings and a
// generated tsvector column for keyword search.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	log    *logger.Logger
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, log *logger.Logger) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "meeting_documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // OpenAI embeddings
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		log:    log.With("component", "store.pgvector", "table", config.TableName),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, vs.config.QueryTimeout)
	defer cancel()

	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL DEFAULT '',
			meeting_date TEXT NOT NULL,
			meeting_type TEXT NOT NULL,
			file_type TEXT NOT NULL,
			source_document TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding vector(%d),
			metadata JSONB,
			content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(content, ''))) STORED,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
			ON %[1]s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, vs.config.TableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_tsv_idx ON %[1]s USING GIN (content_tsv)`, vs.config.TableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_identity_idx
			ON %[1]s (meeting_date, meeting_type, file_type, source_document)`, vs.config.TableName),
	}
	for _, stmt := range indexes {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (vs *VectorStore) Insert(ctx context.Context, chunk models.Chunk) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, vs.config.QueryTimeout)
	defer cancel()

	id := uuid.NewString()
	content := sanitizeUTF8(chunk.Content)
	chunk.Content = content

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, meeting_date, meeting_type, file_type, source_document, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		vs.config.TableName)

	_, err := vs.pool.Exec(ctx, stmt,
		id,
		content,
		chunk.MeetingDate,
		chunk.MeetingType,
		chunk.FileType,
		chunk.SourceDocument,
		chunk.ChunkIndex,
		pgvector.NewVector(chunk.Embedding),
		chunk.Properties(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
	}
	return id, nil
}

func (vs *VectorStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, vs.config.QueryTimeout)
	defer cancel()

	tag, err := vs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", vs.config.TableName), id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	return nil
}

func (vs *VectorStore) FindByIdentity(ctx context.Context, identity models.Identity) ([]models.StoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, vs.config.QueryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, content, chunk_index, meeting_date, meeting_type, file_type, source_document
		FROM %s
		WHERE meeting_date = $1 AND meeting_type = $2 AND file_type = $3 AND source_document = $4
		ORDER BY chunk_index`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query,
		identity.MeetingDate, identity.MeetingType, identity.FileType, identity.SourceDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []models.StoredChunk
	for rows.Next() {
		var sc models.StoredChunk
		if err := rows.Scan(
			&sc.ID,
			&sc.Content,
			&sc.ChunkIndex,
			&sc.MeetingDate,
			&sc.MeetingType,
			&sc.FileType,
			&sc.SourceDocument,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// KeywordSearch ranks rows by ts_rank_cd against an OR query built from the
// words in query.
func (vs *VectorStore) KeywordSearch(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	tsq := orTSQuery(query)
	if tsq == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, vs.config.QueryTimeout)
	defer cancel()

	sql := fmt.Sprintf(`
		SELECT id, content, chunk_index, meeting_date, meeting_type, file_type, source_document,
			ts_rank_cd(content_tsv, q)::float8 AS score
		FROM %s, to_tsquery('english', $1) q
		WHERE content_tsv @@ q
		ORDER BY score DESC
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, sql, tsq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	return scanHits(rows)
}

// VectorSearch returns the nearest rows by cosine distance, closest first.
func (vs *VectorStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error) {
	ctx, cancel := context.WithTimeout(ctx, vs.config.QueryTimeout)
	defer cancel()

	sql := fmt.Sprintf(`
		SELECT id, content, chunk_index, meeting_date, meeting_type, file_type, source_document,
			embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, sql, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	return scanHits(rows)
}

func scanHits(rows pgx.Rows) ([]models.SearchHit, error) {
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var (
			id                                     string
			content                                *string
			chunkIndex                             *int32
			date, meetingType, fileType, sourceDoc *string
			score                                  float64
		)
		if err := rows.Scan(&id, &content, &chunkIndex, &date, &meetingType, &fileType, &sourceDoc, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		props := map[string]interface{}{}
		setIf(props, models.PropContent, content)
		setIf(props, models.PropMeetingDate, date)
		setIf(props, models.PropMeetingType, meetingType)
		setIf(props, models.PropFileType, fileType)
		setIf(props, models.PropSourceDocument, sourceDoc)
		if chunkIndex != nil {
			props[models.PropChunkIndex] = int(*chunkIndex)
		}

		s := score
		hits = append(hits, models.SearchHit{ID: id, Properties: props, Score: &s})
	}
	return hits, rows.Err()
}

func setIf(props map[string]interface{}, key string, v *string) {
	if v != nil {
		props[key] = *v
	}
}

// LockIdentity takes a session-level advisory lock keyed by the identity so
// concurrent ingestions of the same document do not interleave their
// delete-then-insert sequences.
func (vs *VectorStore) LockIdentity(ctx context.Context, identity models.Identity) (func(), error) {
	conn, err := vs.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	key := identity.String()
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to lock identity: %w", err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), vs.config.QueryTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			vs.log.Warn("failed to release identity lock", "identity", key, "error", err)
		}
		conn.Release()
	}, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// orTSQuery turns free text into "w1 | w2 | ..." so any keyword can match.
// Only letters and digits survive, which keeps to_tsquery from rejecting input.
func orTSQuery(q string) string {
	words := terms(q)
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, " | ")
}

var ErrNotFound = errors.New("not found")

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
