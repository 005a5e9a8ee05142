package transcript

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         uuid PRIMARY KEY,
	title      text        NOT NULL,
	owner      text        NOT NULL,
	created_at timestamptz NOT NULL,
	messages   jsonb       NOT NULL DEFAULT '[]'::jsonb
);
CREATE INDEX IF NOT EXISTS chats_owner_created_idx ON chats (owner, created_at DESC);
`

// PostgresStore keeps each transcript as one row with a jsonb message array.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and makes sure the chats table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ensure schema")
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, t chat.Transcript) (chat.Transcript, error) {
	if t.Owner == "" {
		return chat.Transcript{}, ErrOwnerRequired
	}
	if err := validate(t.Messages); err != nil {
		return chat.Transcript{}, err
	}
	if t.Messages == nil {
		t.Messages = []chat.Message{}
	}

	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(t.Messages)
	if err != nil {
		return chat.Transcript{}, errors.Wrap(err, "encode messages")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chats (id, title, owner, created_at, messages) VALUES ($1, $2, $3, $4, $5::jsonb)`,
		t.ID, t.Title, t.Owner, t.CreatedAt, string(body),
	)
	if err != nil {
		return chat.Transcript{}, errors.Wrap(err, "insert chat")
	}

	log.Debug().Str("chat_id", t.ID).Str("owner", t.Owner).Msg("chat created")
	return t, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (chat.Transcript, error) {
	if _, err := uuid.Parse(id); err != nil {
		return chat.Transcript{}, ErrNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id::text, title, owner, created_at, messages FROM chats WHERE id = $1`, id)

	t, err := scanTranscript(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Transcript{}, ErrNotFound
	}
	if err != nil {
		return chat.Transcript{}, errors.Wrap(err, "select chat")
	}
	return t, nil
}

// Append concatenates msgs onto the jsonb array in a single UPDATE.
func (s *PostgresStore) Append(ctx context.Context, id string, msgs ...chat.Message) error {
	if err := validate(msgs); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	body, err := json.Marshal(msgs)
	if err != nil {
		return errors.Wrap(err, "encode messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET messages = messages || $2::jsonb WHERE id = $1`, id, string(body))
	if err != nil {
		return errors.Wrap(err, "append messages")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]chat.Transcript, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, title, owner, created_at, messages FROM chats WHERE owner = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, errors.Wrap(err, "query chats")
	}
	defer rows.Close()

	out := make([]chat.Transcript, 0)
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan chat")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate chats")
	}
	return out, nil
}

func (s *PostgresStore) Rename(ctx context.Context, id, owner, title string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET title = $3 WHERE id = $1 AND owner = $2`, id, owner, title)
	if err != nil {
		return errors.Wrap(err, "rename chat")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTranscript(row pgx.Row) (chat.Transcript, error) {
	var (
		t    chat.Transcript
		body []byte
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Owner, &t.CreatedAt, &body); err != nil {
		return chat.Transcript{}, err
	}

	t.Messages = []chat.Message{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &t.Messages); err != nil {
			return chat.Transcript{}, errors.Wrap(err, "decode messages")
		}
	}
	return t, nil
}
