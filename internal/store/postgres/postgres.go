package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"chats",
		"messages",
		"chat_suggestions",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) UpsertChat(ctx context.Context, chat store.Chat) error {
	const query = `
		INSERT INTO chats (id, user_id, group_id, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_id = COALESCE(EXCLUDED.user_id, chats.user_id),
			group_id = EXCLUDED.group_id,
			model = EXCLUDED.model,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(ctx, query, chat.ID, nullString(chat.UserID), chat.Group, chat.Model, time.Now().UTC())
	return err
}

func (p *PostgresStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	const query = `
		SELECT id, user_id, group_id, model, created_at, updated_at
		FROM chats
		WHERE id = $1
	`
	var chat store.Chat
	var userID sql.NullString
	var createdAt, updatedAt time.Time
	err := p.db.QueryRowContext(ctx, query, chatID).Scan(&chat.ID, &userID, &chat.Group, &chat.Model, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chat.UserID = userID.String
	chat.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	chat.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &chat, nil
}

// AppendMessages locks the chat row so concurrent appends get disjoint
// sequences.
func (p *PostgresStore) AppendMessages(ctx context.Context, chatID string, msgs []store.Message) (stored []store.Message, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	err = tx.QueryRowContext(ctx, "SELECT id FROM chats WHERE id = $1 FOR UPDATE", chatID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	var last int64
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(sequence), 0) FROM messages WHERE chat_id = $1", chatID).Scan(&last); err != nil {
		return nil, err
	}

	const insert = `
		INSERT INTO messages (id, chat_id, role, content, sequence, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	stored = make([]store.Message, 0, len(msgs))
	for _, msg := range msgs {
		last++
		msg.ChatID = chatID
		msg.Sequence = last
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.Metadata == nil {
			msg.Metadata = map[string]any{}
		}
		createdAt := parseTimestampValue(msg.CreatedAt)
		msg.CreatedAt = createdAt.Format(time.RFC3339Nano)
		var encoded []byte
		if encoded, err = json.Marshal(msg.Metadata); err != nil {
			return nil, err
		}
		if _, err = tx.ExecContext(ctx, insert, msg.ID, chatID, msg.Role, msg.Content, msg.Sequence, createdAt, encoded); err != nil {
			return nil, err
		}
		stored = append(stored, msg)
	}
	if _, err = tx.ExecContext(ctx, "UPDATE chats SET updated_at = $2 WHERE id = $1", chatID, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (p *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	const query = `
		SELECT id, chat_id, role, content, sequence, created_at, metadata
		FROM messages
		WHERE chat_id = $1
		ORDER BY sequence ASC
	`
	rows, err := p.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Message{}
	for rows.Next() {
		var createdAt time.Time
		var metadataBytes []byte
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.Sequence, &createdAt, &metadataBytes); err != nil {
			return nil, err
		}
		msg.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		msg.Metadata = map[string]any{}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &msg.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) SaveSuggestions(ctx context.Context, suggestions store.Suggestions) error {
	questions := suggestions.Questions
	if questions == nil {
		questions = []string{}
	}
	encoded, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO chat_suggestions (chat_id, questions, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET
			questions = EXCLUDED.questions,
			created_at = EXCLUDED.created_at
	`
	_, err = p.db.ExecContext(ctx, query, suggestions.ChatID, encoded, parseTimestampValue(suggestions.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "chat_suggestions_chat_id_fkey") {
		return store.ErrChatNotFound
	}
	return err
}

func (p *PostgresStore) GetSuggestions(ctx context.Context, chatID string) (*store.Suggestions, error) {
	const query = `
		SELECT chat_id, questions, created_at
		FROM chat_suggestions
		WHERE chat_id = $1
	`
	var out store.Suggestions
	var raw []byte
	var createdAt time.Time
	err := p.db.QueryRowContext(ctx, query, chatID).Scan(&out.ChatID, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Questions = decodeStringSlice(raw)
	out.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	return &out, nil
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func decodeStringSlice(raw []byte) []string {
	values := []string{}
	if len(raw) == 0 {
		return values
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return []string{}
	}
	return values
}
