package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mailroom.app/engine/common/id"
	"mailroom.app/engine/internal/model"
)

// LogFilter drives FindLogs. Nil fields match everything; WithMessages
// controls whether the message trail is projected into the result.
type LogFilter struct {
	Recipient    *model.UserID
	Open         *bool
	WithMessages bool
	Limit        int32
}

// CreateLogEntry opens the persisted trail for a new session and returns
// its shareable key.
func (s *Store) CreateLogEntry(ctx context.Context, rec model.LogRecord) (string, error) {
	key := rec.Key
	if key == "" {
		key = id.NewKey()
	}
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO session_logs (key, channel_id, recipient_id, creator_id, open, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)`,
		key, rec.ChannelID, rec.Recipient, rec.Creator, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("creating log entry: %w", err)
	}
	return key, nil
}

func (s *Store) AppendLogMessage(ctx context.Context, ch model.ChannelID, msg model.LogMessage) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO session_log_messages (channel_id, logical_id, author_id, role, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ch, msg.LogicalID, msg.AuthorID, msg.Role, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending log message: %w", err)
	}
	return nil
}

// CloseLog marks the trail closed and returns the closed record including
// its messages, which close notices use for the sneak peek line.
func (s *Store) CloseLog(ctx context.Context, ch model.ChannelID, closer model.UserID, message *string) (model.LogRecord, error) {
	now := time.Now().UTC()
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE session_logs
		SET open = FALSE, closed_at = $2, closer_id = $3, close_message = $4
		WHERE channel_id = $1`,
		ch, now, closer, message)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("closing log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.LogRecord{}, ErrNotFound
	}
	return s.getLog(ctx, ch, true)
}

func (s *Store) GetLog(ctx context.Context, ch model.ChannelID) (model.LogRecord, error) {
	return s.getLog(ctx, ch, true)
}

func (s *Store) GetUserLogs(ctx context.Context, recipient model.UserID) ([]model.LogRecord, error) {
	return s.FindLogs(ctx, LogFilter{Recipient: &recipient, WithMessages: true})
}

func (s *Store) FindLogs(ctx context.Context, f LogFilter) ([]model.LogRecord, error) {
	query := `
		SELECT key, channel_id, recipient_id, creator_id, open, created_at, closed_at, closer_id, close_message
		FROM session_logs WHERE TRUE`
	args := []any{}

	if f.Recipient != nil {
		args = append(args, *f.Recipient)
		query += fmt.Sprintf(" AND recipient_id = $%d", len(args))
	}
	if f.Open != nil {
		args = append(args, *f.Open)
		query += fmt.Sprintf(" AND open = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var records []model.LogRecord
	for rows.Next() {
		rec, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.WithMessages {
		for i := range records {
			msgs, err := s.logMessages(ctx, records[i].ChannelID)
			if err != nil {
				return nil, err
			}
			records[i].Messages = msgs
		}
	}
	return records, nil
}

// GetLogLink returns the shareable URL for a session's log trail.
func (s *Store) GetLogLink(ctx context.Context, ch model.ChannelID) (string, error) {
	var key string
	err := s.db.Pool().QueryRow(ctx,
		`SELECT key FROM session_logs WHERE channel_id = $1`, ch).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("querying log key: %w", err)
	}
	return s.logURL + "/" + key, nil
}

func (s *Store) getLog(ctx context.Context, ch model.ChannelID, withMessages bool) (model.LogRecord, error) {
	row := s.db.Pool().QueryRow(ctx, `
		SELECT key, channel_id, recipient_id, creator_id, open, created_at, closed_at, closer_id, close_message
		FROM session_logs WHERE channel_id = $1`, ch)

	rec, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LogRecord{}, ErrNotFound
		}
		return model.LogRecord{}, err
	}

	if withMessages {
		rec.Messages, err = s.logMessages(ctx, ch)
		if err != nil {
			return model.LogRecord{}, err
		}
	}
	return rec, nil
}

func (s *Store) logMessages(ctx context.Context, ch model.ChannelID) ([]model.LogMessage, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT logical_id, author_id, role, body, created_at
		FROM session_log_messages WHERE channel_id = $1 ORDER BY created_at ASC`, ch)
	if err != nil {
		return nil, fmt.Errorf("querying log messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.LogMessage
	for rows.Next() {
		var m model.LogMessage
		if err := rows.Scan(&m.LogicalID, &m.AuthorID, &m.Role, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning log message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (model.LogRecord, error) {
	var rec model.LogRecord
	err := row.Scan(&rec.Key, &rec.ChannelID, &rec.Recipient, &rec.Creator,
		&rec.Open, &rec.CreatedAt, &rec.ClosedAt, &rec.CloserID, &rec.CloseMessage)
	return rec, err
}
