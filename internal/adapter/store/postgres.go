package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/port"
)

// PostgresStore handles all relational database operations: chat history
// sessions/turns and the compliance audit log.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// --- Chat history ---

// CreateChat starts a new conversation session and returns its id.
func (s *PostgresStore) CreateChat(ctx context.Context, userID string) (string, error) {
	query := `INSERT INTO chats (user_id) VALUES ($1) RETURNING id`

	var id string
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&id); err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	return id, nil
}

// AppendMessages stores conversation turns on an existing session. The
// session must belong to the given user.
func (s *PostgresStore) AppendMessages(ctx context.Context, chatID, userID string, msgs []domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM chats WHERE id = $1`, chatID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup chat: %w", err)
	}
	if owner != userID {
		return port.ErrChatNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (chat_id, sender, text, sentiment_score, sentiment_label)
		 VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		var score sql.NullFloat64
		var label sql.NullString
		if m.Sentiment != nil {
			score = sql.NullFloat64{Float64: m.Sentiment.Score, Valid: true}
			label = sql.NullString{String: m.Sentiment.Label, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, chatID, m.Sender, m.Text, score, label); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	return tx.Commit()
}

// ListChats returns a user's sessions, most recent first, each with a
// message count and a preview of the opening message.
func (s *PostgresStore) ListChats(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	query := `SELECT c.id, c.user_id, c.created_at,
	                 COALESCE(MAX(m.created_at), c.created_at) AS last_message_at,
	                 COUNT(m.id) AS message_count,
	                 COALESCE((SELECT m2.text FROM chat_messages m2
	                           WHERE m2.chat_id = c.id
	                           ORDER BY m2.created_at ASC, m2.id ASC LIMIT 1), '') AS first_text
	          FROM chats c
	          LEFT JOIN chat_messages m ON m.chat_id = c.id
	          WHERE c.user_id = $1
	          GROUP BY c.id
	          ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ChatSession
	for rows.Next() {
		var cs domain.ChatSession
		if err := rows.Scan(&cs.ID, &cs.UserID, &cs.CreatedAt, &cs.LastMessageAt, &cs.MessageCount, &cs.Preview); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		cs.Preview = truncatePreview(cs.Preview, 80)
		sessions = append(sessions, cs)
	}
	return sessions, rows.Err()
}

// GetChatMessages returns all turns of a session in order. The session
// must belong to the given user.
func (s *PostgresStore) GetChatMessages(ctx context.Context, chatID, userID string) ([]domain.ChatMessage, error) {
	query := `SELECT m.id, m.chat_id, m.sender, m.text, m.sentiment_score, m.sentiment_label, m.created_at
	          FROM chat_messages m
	          JOIN chats c ON c.id = m.chat_id
	          WHERE m.chat_id = $1 AND c.user_id = $2
	          ORDER BY m.created_at ASC, m.id ASC`

	rows, err := s.db.QueryContext(ctx, query, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var score sql.NullFloat64
		var label sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Text, &score, &label, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if score.Valid {
			m.Sentiment = &domain.Sentiment{Score: score.Float64, Label: label.String}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		// Distinguish "empty chat you own" from "not yours / missing".
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM chats WHERE id = $1 AND user_id = $2)`, chatID, userID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("lookup chat: %w", err)
		}
		if !exists {
			return nil, port.ErrChatNotFound
		}
	}
	return msgs, nil
}

// DeleteChat removes a session and its messages.
func (s *PostgresStore) DeleteChat(ctx context.Context, chatID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrChatNotFound
	}
	return nil
}

// --- Audit logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	_, err := s.db.ExecContext(context.Background(), query,
		userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}

// ListAuditLogs returns recent audit logs with optional filters.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs`
	args := []interface{}{}
	argIdx := 1

	if action != "" {
		query += fmt.Sprintf(" WHERE action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func truncatePreview(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
