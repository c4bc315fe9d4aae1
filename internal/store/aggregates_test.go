package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willwe-dev/activity"
)

func TestEnsureNode_FillsParentLater(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureNode(ctx, "child", nil, ""))
	require.NoError(t, s.EnsureNode(ctx, "child", ptr("root"), ""))
	require.NoError(t, s.EnsureNode(ctx, "child", ptr("other"), ""))

	n, err := s.Node(ctx, "child")
	require.NoError(t, err)
	require.NotNil(t, n.ParentID)
	assert.Equal(t, "root", *n.ParentID)
	assert.Equal(t, "0", n.TotalSupply)
}

func TestNode_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Node(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustSupply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNode(ctx, "N1", nil, ""))

	huge, _ := new(big.Int).SetString("100000000000000000000000", 10)
	require.NoError(t, s.AdjustSupply(ctx, "N1", huge))
	require.NoError(t, s.AdjustSupply(ctx, "N1", big.NewInt(-1)))

	n, err := s.Node(ctx, "N1")
	require.NoError(t, err)
	assert.Equal(t, "99999999999999999999999", n.TotalSupply)

	assert.ErrorIs(t, s.AdjustSupply(ctx, "missing", big.NewInt(1)), ErrNotFound)
}

func TestAddSignature_CountsDistinctSigners(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateMovement(ctx, &activity.Movement{ID: "mv1", NodeID: "N1", Creator: "0x1"})
	require.NoError(t, err)
	assert.True(t, created)

	for _, signer := range []string{"0xA", "0xa", "0xB"} {
		_, err := s.AddSignature(ctx, &activity.Signature{MovementID: "mv1", NodeID: "N1", Signer: signer})
		require.NoError(t, err)
	}

	m, err := s.Movement(ctx, "mv1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.SignatureCount)

	sigs, err := s.Signatures(ctx, "mv1")
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
}

func TestMarkMovementExecuted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateMovement(ctx, &activity.Movement{ID: "mv1", NodeID: "N1"})
	require.NoError(t, err)
	require.NoError(t, s.MarkMovementExecuted(ctx, "mv1", "2024-01-01T00:00:00.000Z"))

	ms, err := s.Movements(ctx, "N1", 10)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.True(t, ms[0].Executed)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", *ms[0].ExecutedAt)
}

func TestSavePreference_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SavePreference(ctx, "0xABC", []byte(`{"theme":"dark"}`))
	require.NoError(t, err)
	_, err = s.SavePreference(ctx, "0xabc", []byte(`{"theme":"light"}`))
	require.NoError(t, err)

	p, err := s.Preference(ctx, "0xAbc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"light"}`, string(p.Data))

	_, err = s.Preference(ctx, "0xdef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureMembrane(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureMembrane(ctx, &activity.MembraneRecord{ID: "m1", NodeID: ptr("N1")}))
	require.NoError(t, s.EnsureMembrane(ctx, &activity.MembraneRecord{ID: "m1", Creator: "0x2"}))

	m, err := s.Membrane(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "N1", *m.NodeID)
	assert.Empty(t, m.Creator)
}
