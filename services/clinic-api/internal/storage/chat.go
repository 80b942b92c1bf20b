package storage

import (
	"context"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

// InsertChatMessage appends one turn to an assistant session transcript.
func (s *Store) InsertChatMessage(ctx context.Context, msg model.ChatMessage) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id
	`, msg.SessionID, msg.Role, msg.Content).Scan(&id)
	return id, err
}

func (s *Store) ChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
