package store

import (
	"context"
	"fmt"
	"math/big"

	"gorm.io/gorm/clause"

	"github.com/willwe-dev/activity"
)

var doNothing = clause.OnConflict{DoNothing: true}

// EnsureUser creates the user on first sight.
func (s *Store) EnsureUser(ctx context.Context, address string) error {
	addr := activity.NormalizeAddress(address)
	if addr == "" {
		return nil
	}
	u := activity.User{Address: addr, FirstSeen: s.timestamp()}
	if err := s.db.WithContext(ctx).Clauses(doNothing).Create(&u).Error; err != nil {
		return fmt.Errorf("ensure user %s: %w", addr, err)
	}
	return nil
}

// EnsureNode creates the node on first sight. A parent learned later fills a
// node that was created without one.
func (s *Store) EnsureNode(ctx context.Context, id string, parentID *string, createdAt string) error {
	if id == "" {
		return nil
	}
	if createdAt == "" {
		createdAt = s.timestamp()
	}
	n := activity.Node{ID: id, ParentID: parentID, TotalSupply: "0", CreatedAt: createdAt}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(doNothing).Create(&n).Error; err != nil {
		return fmt.Errorf("ensure node %s: %w", id, err)
	}
	if parentID != nil {
		err := db.Model(&activity.Node{}).
			Where("id = ? AND parent_id IS NULL", id).
			Update("parent_id", *parentID).Error
		if err != nil {
			return fmt.Errorf("set parent of node %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) Node(ctx context.Context, id string) (*activity.Node, error) {
	var n activity.Node
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// AdjustSupply adds delta (which may be negative) to the node's total supply.
func (s *Store) AdjustSupply(ctx context.Context, nodeID string, delta *big.Int) error {
	db := s.db.WithContext(ctx)

	var n activity.Node
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&n, "id = ?", nodeID).Error
	if err != nil {
		return fmt.Errorf("adjust supply of node %s: %w", nodeID, notFound(err))
	}

	supply, ok := new(big.Int).SetString(n.TotalSupply, 10)
	if !ok {
		supply = new(big.Int)
	}
	supply.Add(supply, delta)

	err = db.Model(&activity.Node{}).Where("id = ?", nodeID).Update("total_supply", supply.String()).Error
	if err != nil {
		return fmt.Errorf("adjust supply of node %s: %w", nodeID, err)
	}
	return nil
}

func (s *Store) SetInflationRate(ctx context.Context, nodeID, rate string) error {
	return s.setNodeColumn(ctx, nodeID, "inflation_rate", rate)
}

func (s *Store) SetMembrane(ctx context.Context, nodeID, membraneID string) error {
	return s.setNodeColumn(ctx, nodeID, "membrane_id", membraneID)
}

func (s *Store) SetEndpoint(ctx context.Context, nodeID, endpoint string) error {
	return s.setNodeColumn(ctx, nodeID, "endpoint", endpoint)
}

func (s *Store) setNodeColumn(ctx context.Context, nodeID, column, value string) error {
	err := s.db.WithContext(ctx).Model(&activity.Node{}).Where("id = ?", nodeID).Update(column, value).Error
	if err != nil {
		return fmt.Errorf("set %s of node %s: %w", column, nodeID, err)
	}
	return nil
}

// CreateMovement inserts m unless a movement with its id exists.
func (s *Store) CreateMovement(ctx context.Context, m *activity.Movement) (bool, error) {
	if m.CreatedAt == "" {
		m.CreatedAt = s.timestamp()
	}
	if len(m.Data) == 0 {
		m.Data = []byte("null")
	}
	res := s.db.WithContext(ctx).Clauses(doNothing).Create(m)
	if res.Error != nil {
		return false, fmt.Errorf("create movement %s: %w", m.ID, res.Error)
	}
	// signatures may have been indexed before the movement itself
	if err := s.recountSignatures(ctx, m.ID); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Movement(ctx context.Context, id string) (*activity.Movement, error) {
	var m activity.Movement
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// Movements returns the node's movements, newest first.
func (s *Store) Movements(ctx context.Context, nodeID string, limit int) ([]activity.Movement, error) {
	var ms []activity.Movement
	err := s.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("created_at DESC").
		Limit(activity.ClampLimit(limit)).
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list movements for node %s: %w", nodeID, err)
	}
	return ms, nil
}

func (s *Store) MarkMovementExecuted(ctx context.Context, id, at string) error {
	err := s.db.WithContext(ctx).Model(&activity.Movement{}).
		Where("id = ?", id).
		Updates(map[string]any{"executed": true, "executed_at": at}).Error
	if err != nil {
		return fmt.Errorf("mark movement %s executed: %w", id, err)
	}
	return nil
}

// SignatureID is the natural key of a movement signature.
func SignatureID(movementID, signer string) string {
	return movementID + ":" + activity.NormalizeAddress(signer)
}

// AddSignature records the signature once and refreshes the movement's
// signature count from the signatures table.
func (s *Store) AddSignature(ctx context.Context, sig *activity.Signature) (bool, error) {
	sig.Signer = activity.NormalizeAddress(sig.Signer)
	if sig.ID == "" {
		sig.ID = SignatureID(sig.MovementID, sig.Signer)
	}
	if sig.Timestamp == "" {
		sig.Timestamp = s.timestamp()
	}
	res := s.db.WithContext(ctx).Clauses(doNothing).Create(sig)
	if res.Error != nil {
		return false, fmt.Errorf("add signature %s: %w", sig.ID, res.Error)
	}
	if err := s.recountSignatures(ctx, sig.MovementID); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) recountSignatures(ctx context.Context, movementID string) error {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&activity.Signature{}).Where("movement_id = ?", movementID).Count(&count).Error; err != nil {
		return fmt.Errorf("count signatures of %s: %w", movementID, err)
	}
	err := db.Model(&activity.Movement{}).Where("id = ?", movementID).Update("signature_count", count).Error
	if err != nil {
		return fmt.Errorf("update signature count of %s: %w", movementID, err)
	}
	return nil
}

func (s *Store) Signatures(ctx context.Context, movementID string) ([]activity.Signature, error) {
	var sigs []activity.Signature
	err := s.db.WithContext(ctx).
		Where("movement_id = ?", movementID).
		Order("timestamp ASC").
		Find(&sigs).Error
	if err != nil {
		return nil, fmt.Errorf("list signatures of %s: %w", movementID, err)
	}
	return sigs, nil
}

func (s *Store) EnsureMembrane(ctx context.Context, m *activity.MembraneRecord) error {
	if m.CreatedAt == "" {
		m.CreatedAt = s.timestamp()
	}
	if len(m.Data) == 0 {
		m.Data = []byte("null")
	}
	if err := s.db.WithContext(ctx).Clauses(doNothing).Create(m).Error; err != nil {
		return fmt.Errorf("ensure membrane %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) Membrane(ctx context.Context, id string) (*activity.MembraneRecord, error) {
	var m activity.MembraneRecord
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) Preference(ctx context.Context, address string) (*activity.UserPreference, error) {
	var p activity.UserPreference
	err := s.db.WithContext(ctx).First(&p, "user_address = ?", activity.NormalizeAddress(address)).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// SavePreference replaces the user's preference document.
func (s *Store) SavePreference(ctx context.Context, address string, data []byte) (*activity.UserPreference, error) {
	p := activity.UserPreference{
		UserAddress: activity.NormalizeAddress(address),
		Data:        data,
		UpdatedAt:   s.timestamp(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("save preference of %s: %w", p.UserAddress, err)
	}
	return &p, nil
}
