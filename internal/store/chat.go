package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/willwe-dev/activity"
)

func (s *Store) CreateChatMessage(ctx context.Context, msg *activity.ChatMessage) error {
	msg.NodeID = strings.TrimSpace(msg.NodeID)
	msg.UserAddress = activity.NormalizeAddress(msg.UserAddress)
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = s.timestamp()
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("store chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the node's latest messages in ascending time order.
func (s *Store) ListChatMessages(ctx context.Context, nodeID string, limit int) ([]activity.ChatMessage, error) {
	var msgs []activity.ChatMessage
	err := s.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(activity.ClampLimit(limit)).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list chat messages for node %s: %w", nodeID, err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}
