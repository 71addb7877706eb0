package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

const messageColumns = `id, channel_id, tenant_id, project_id, user_id, role, content, seq, created_at`

// AppendMessage assigns the next sequence number for the channel and
// inserts the message in a single statement, so sequence numbers are
// gapless and strictly increasing per channel even under concurrent
// appenders. A read-then-write transaction would start on a WAL read
// snapshot and fail the upgrade with SQLITE_BUSY instead of queueing
// behind the other writer.
func (s *Store) AppendMessage(ctx context.Context, m *v1.ChannelMessage) error {
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO channel_messages (`+messageColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ?
		FROM channel_messages
		WHERE tenant_id = ? AND project_id = ? AND user_id = ? AND channel_id = ?
		RETURNING seq`,
		m.ID, m.ChannelID, m.TenantID, m.ProjectID, m.UserID,
		string(m.Role), m.Content, formatTime(m.CreatedAt),
		m.TenantID, m.ProjectID, m.UserID, m.ChannelID).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("metastore: append message: %w", err)
	}
	return nil
}

// ChannelHistory returns up to limit messages for a channel, newest
// first. A beforeSeq > 0 acts as an exclusive cursor for paging
// backwards through history.
func (s *Store) ChannelHistory(ctx context.Context, scope vectorstore.Scope, channelID string, limit int, beforeSeq int64) ([]*v1.ChannelMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + messageColumns + ` FROM channel_messages
		WHERE tenant_id = ? AND project_id = ? AND user_id = ? AND channel_id = ?`
	args := []interface{}{scope.TenantID, scope.ProjectID, scope.UserID, channelID}
	if beforeSeq > 0 {
		query += ` AND seq < ?`
		args = append(args, beforeSeq)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: channel history: %w", err)
	}
	defer rows.Close()

	var out []*v1.ChannelMessage
	for rows.Next() {
		var m v1.ChannelMessage
		var role, createdAt string
		err := rows.Scan(&m.ID, &m.ChannelID, &m.TenantID, &m.ProjectID, &m.UserID,
			&role, &m.Content, &m.Seq, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("metastore: scan message: %w", err)
		}
		m.Role = v1.Role(role)
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}
