// Package channel maintains ordered per-channel message history in the
// metadata store. Unlike fragments, messages never touch the vector
// store; their ordering guarantee comes from per-channel sequence
// numbers assigned at insert.
package channel

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

// Manager appends to and reads channel histories.
type Manager struct {
	meta   *metastore.Store
	logger *logging.Logger
}

// NewManager builds a channel manager over the metadata store.
func NewManager(meta *metastore.Store, logger *logging.Logger) *Manager {
	return &Manager{meta: meta, logger: logger.Named("channel")}
}

// Append adds a message to a channel and returns it with its assigned
// sequence number. Ownership comes from the request scope.
func (m *Manager) Append(ctx context.Context, channelID string, role v1.Role, content string) (*v1.ChannelMessage, error) {
	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateChannelID(channelID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, v1.NewValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(content) > v1.MaxContentLength {
		return nil, v1.NewValidationError("content", "exceeds maximum length")
	}
	if role == "" || !v1.ValidRole(role) {
		return nil, v1.NewValidationError("role", "unknown role")
	}

	msg := &v1.ChannelMessage{
		ChannelID: channelID,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
		UserID:    scope.UserID,
		Role:      role,
		Content:   content,
	}
	if err := m.meta.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns up to limit messages, newest first. beforeSeq > 0
// pages backwards, excluding that sequence number.
func (m *Manager) History(ctx context.Context, channelID string, limit int, beforeSeq int64) ([]*v1.ChannelMessage, error) {
	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateChannelID(channelID); err != nil {
		return nil, err
	}
	return m.meta.ChannelHistory(ctx, *scope, channelID, limit, beforeSeq)
}

// HistoryForLLM renders the most recent messages oldest first, the
// order a model consumes a conversation in.
func (m *Manager) HistoryForLLM(ctx context.Context, channelID string, limit int) (string, error) {
	msgs, err := m.History(ctx, channelID, limit, 0)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := len(msgs) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s: %s\n", msgs[i].Role, msgs[i].Content)
	}
	return b.String(), nil
}

func validateChannelID(channelID string) error {
	if strings.TrimSpace(channelID) == "" {
		return v1.NewValidationError("channel_id", "must not be empty")
	}
	if utf8.RuneCountInString(channelID) > v1.MaxChannelLength {
		return v1.NewValidationError("channel_id", "exceeds maximum length")
	}
	return nil
}
