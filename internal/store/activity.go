package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/willwe-dev/activity"
)

type WriteOption func(*activity.Activity)

// WithID sets the row id, normally the event's natural key.
func WithID(id string) WriteOption {
	return func(a *activity.Activity) { a.ID = id }
}

// WithTimestamp records t instead of the ingestion time.
func WithTimestamp(t time.Time) WriteOption {
	return func(a *activity.Activity) { a.Timestamp = activity.FormatTimestamp(t) }
}

// StoreActivityLog writes one activity row and returns its id.
func (s *Store) StoreActivityLog(ctx context.Context, nodeID, userAddress *string, eventType string, data any, opts ...WriteOption) (string, error) {
	payload, err := activity.EncodeData(data)
	if err != nil {
		return "", err
	}
	a := &activity.Activity{
		NodeID:      nodeID,
		UserAddress: userAddress,
		EventType:   eventType,
		Data:        payload,
	}
	for _, opt := range opts {
		opt(a)
	}
	if _, err := s.WriteActivity(ctx, a); err != nil {
		return "", err
	}
	return a.ID, nil
}

// WriteActivity inserts a, filling a generated id and the current time when
// they are missing. It reports false when a row with the same id already
// exists; the existing row is left untouched.
func (s *Store) WriteActivity(ctx context.Context, a *activity.Activity) (bool, error) {
	a.EventType = strings.TrimSpace(a.EventType)
	if a.EventType == "" {
		return false, activity.ErrMissingEventType
	}
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.Timestamp == "" {
		a.Timestamp = s.timestamp()
	}
	a.NodeID = blankToNil(a.NodeID)
	a.UserAddress = blankToNil(a.UserAddress)
	if a.UserAddress != nil {
		addr := activity.NormalizeAddress(*a.UserAddress)
		a.UserAddress = &addr
	}
	if len(a.Data) == 0 {
		a.Data = []byte("null")
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("store activity %s: %w", a.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListActivities returns the subject's newest activities first.
func (s *Store) ListActivities(ctx context.Context, subject activity.Subject, limit int) ([]activity.Activity, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	var acts []activity.Activity
	err := s.subjectScope(ctx, subject).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(activity.ClampLimit(limit)).
		Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("list activities for %s: %w", subject.Key(), err)
	}
	return acts, nil
}

// DailyCounts counts the subject's activities per UTC day in [since, until).
// Days are keyed as 2006-01-02; days without activity are absent.
func (s *Store) DailyCounts(ctx context.Context, subject activity.Subject, since, until time.Time) (map[string]int, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	var rows []struct {
		Day   string
		Count int
	}
	err := s.subjectScope(ctx, subject).
		Select("substr(timestamp, 1, 10) AS day, COUNT(*) AS count").
		Where("timestamp >= ? AND timestamp < ?", activity.FormatTimestamp(since), activity.FormatTimestamp(until)).
		Group("substr(timestamp, 1, 10)").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily counts for %s: %w", subject.Key(), err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Day] = r.Count
	}
	return out, nil
}

func (s *Store) CountActivities(ctx context.Context, subject activity.Subject) (int64, error) {
	if err := subject.Validate(); err != nil {
		return 0, err
	}
	var n int64
	if err := s.subjectScope(ctx, subject).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count activities for %s: %w", subject.Key(), err)
	}
	return n, nil
}

func (s *Store) subjectScope(ctx context.Context, subject activity.Subject) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&activity.Activity{})
	if subject.NodeID != "" {
		return q.Where("node_id = ?", subject.NodeID)
	}
	return q.Where("user_address = ?", activity.NormalizeAddress(subject.UserAddress))
}

func (s *Store) Activity(ctx context.Context, id string) (*activity.Activity, error) {
	var a activity.Activity
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
