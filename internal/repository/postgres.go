package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"toolflow/internal/apperr"
	"toolflow/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	title TEXT,
	tool_type TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS workflows (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	tool_type TEXT NOT NULL,
	status TEXT NOT NULL,
	current_step INT NOT NULL DEFAULT 0,
	total_steps INT NOT NULL DEFAULT 0,
	continuation_id TEXT,
	result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflows_conversation ON workflows(conversation_id);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	step_number INT NOT NULL,
	findings TEXT NOT NULL,
	hypothesis TEXT,
	confidence TEXT,
	status TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflow_steps_workflow ON workflow_steps(workflow_id, step_number, created_at);

CREATE TABLE IF NOT EXISTS files (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL,
	conversation_id UUID,
	step_id UUID,
	name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_path TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id TEXT PRIMARY KEY,
	default_model TEXT,
	temperature DOUBLE PRECISION,
	use_web_search BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is the local-database implementation of Store.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore on an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newID() string {
	return uuid.New().String()
}

func marshalMeta(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMeta(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	stored := *user
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt

	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		stored.ID, stored.Email, stored.Name, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`UPDATE users SET
			email = COALESCE($2, email),
			name = COALESCE($3, name),
			updated_at = $4
		WHERE id = $1
		RETURNING id, email, name, created_at, updated_at`,
		id, upd.Email, upd.Name, now()).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- conversations ---

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	stored := *conv
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt

	_, err := s.db.Exec(ctx,
		`INSERT INTO conversations (id, title, tool_type, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, stored.Title, stored.ToolType, stored.OwnerID, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRow(ctx,
		`SELECT id, title, tool_type, owner_id, created_at, updated_at FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.Title, &c.ToolType, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]*models.Conversation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, tool_type, owner_id, created_at, updated_at
		FROM conversations WHERE owner_id = $1
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.ToolType, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRow(ctx,
		`UPDATE conversations SET
			title = COALESCE($2, title),
			updated_at = $3
		WHERE id = $1
		RETURNING id, title, tool_type, owner_id, created_at, updated_at`,
		id, upd.Title, now()).
		Scan(&c.ID, &c.Title, &c.ToolType, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) TouchConversation(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	return nil
}

// --- messages ---

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	stored := *msg
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()

	meta, err := marshalMeta(stored.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, stored.ConversationID, stored.Role, stored.Content, meta, stored.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		var meta []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Metadata, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
