package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/store"
)

// applyFunc mutates aggregates for an event whose activity row was just
// written inside tx.
type applyFunc func(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error

type kind struct {
	node  []string
	actor []string
	apply applyFunc
}

var (
	nodeKeys  = []string{"nodeId", "branchId", "id"}
	actorKeys = []string{"sender", "origin", "from", "creator", "initiator", "signer", "member", "account", "owner"}
)

var kinds = map[string]kind{
	Transfer: {
		node:  []string{"nodeId", "id", "tokenId"},
		actor: []string{"from", "operator"},
		apply: applyTransfer,
	},
	Mint: {
		node:  nodeKeys,
		actor: []string{"to", "account", "minter", "sender"},
		apply: supplyDelta(1),
	},
	Burn: {
		node:  nodeKeys,
		actor: []string{"from", "account", "burner", "sender"},
		apply: supplyDelta(-1),
	},
	MembershipMinted: {
		node:  nodeKeys,
		actor: []string{"member", "account", "to"},
	},
	InflationRateChanged: {
		node:  nodeKeys,
		actor: actorKeys,
		apply: applyInflation,
	},
	MembraneChanged: {
		node:  nodeKeys,
		actor: actorKeys,
		apply: applyMembrane,
	},
	MovementCreated: {
		node:  nodeKeys,
		actor: []string{"initiator", "creator", "sender"},
		apply: applyMovementCreated,
	},
	MovementSigned: {
		node:  nodeKeys,
		actor: []string{"signer", "sender"},
		apply: applyMovementSigned,
	},
	MovementExecuted: {
		node:  nodeKeys,
		actor: []string{"executor", "sender"},
		apply: applyMovementExecuted,
	},
	NewBranch: {
		node:  []string{"newId", "branchId", "nodeId"},
		actor: []string{"creator", "sender"},
		apply: applyNewBranch,
	},
	NewRootBranch: {
		node:  []string{"rootBranchId", "rootId", "nodeId"},
		actor: []string{"creator", "sender"},
	},
	CreatedEndpoint: {
		node:  nodeKeys,
		actor: []string{"owner", "creator", "sender"},
		apply: applyEndpoint,
	},
}

func kindOf(name string) kind {
	if k, ok := kinds[name]; ok {
		return k
	}
	return kind{node: nodeKeys, actor: actorKeys}
}

func applyTransfer(ctx context.Context, tx *store.Store, ev Event, _ *activity.Activity) error {
	if err := tx.EnsureUser(ctx, ev.Arg("from")); err != nil {
		return err
	}
	return tx.EnsureUser(ctx, ev.Arg("to"))
}

// supplyDelta applies the event amount to the node supply with the given sign.
func supplyDelta(sign int64) applyFunc {
	return func(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
		if a.NodeID == nil {
			return fmt.Errorf("%s %s: missing node id", ev.Name, a.ID)
		}
		amount, err := ev.Amount("amount", "value")
		if err != nil {
			return err
		}
		if sign < 0 {
			amount.Neg(amount)
		}
		return tx.AdjustSupply(ctx, *a.NodeID, amount)
	}
}

func applyInflation(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	rate := ev.Arg("newInflationRate", "inflationRate", "rate")
	if a.NodeID == nil || rate == "" {
		return nil
	}
	return tx.SetInflationRate(ctx, *a.NodeID, rate)
}

func applyMembrane(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	membraneID := ev.Arg("newMembrane", "membraneId", "membrane")
	if a.NodeID == nil || membraneID == "" {
		return nil
	}
	err := tx.EnsureMembrane(ctx, &activity.MembraneRecord{
		ID:        membraneID,
		NodeID:    a.NodeID,
		Creator:   ev.Arg(actorKeys...),
		CreatedAt: a.Timestamp,
	})
	if err != nil {
		return err
	}
	return tx.SetMembrane(ctx, *a.NodeID, membraneID)
}

func movementID(ev Event) (string, error) {
	id := ev.Arg("movementHash", "movementId", "movement")
	if id == "" {
		return "", fmt.Errorf("%s %s: missing movement id", ev.Name, ev.ID())
	}
	return id, nil
}

func applyMovementCreated(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	id, err := movementID(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev.Args)
	if err != nil {
		return err
	}
	m := &activity.Movement{
		ID:        id,
		Creator:   activity.NormalizeAddress(ev.Arg("initiator", "creator", "sender")),
		Data:      data,
		CreatedAt: a.Timestamp,
	}
	if a.NodeID != nil {
		m.NodeID = *a.NodeID
	}
	_, err = tx.CreateMovement(ctx, m)
	return err
}

func applyMovementSigned(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	id, err := movementID(ev)
	if err != nil {
		return err
	}
	signer := ev.Arg("signer", "sender")
	if signer == "" {
		return fmt.Errorf("%s %s: missing signer", ev.Name, a.ID)
	}
	sig := &activity.Signature{MovementID: id, Signer: signer, Timestamp: a.Timestamp}
	if a.NodeID != nil {
		sig.NodeID = *a.NodeID
	}
	_, err = tx.AddSignature(ctx, sig)
	return err
}

func applyMovementExecuted(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	id, err := movementID(ev)
	if err != nil {
		return err
	}
	return tx.MarkMovementExecuted(ctx, id, a.Timestamp)
}

func applyNewBranch(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	parent := ev.Arg("parentId", "parent")
	if a.NodeID == nil || parent == "" {
		return nil
	}
	if err := tx.EnsureNode(ctx, parent, nil, a.Timestamp); err != nil {
		return err
	}
	return tx.EnsureNode(ctx, *a.NodeID, &parent, a.Timestamp)
}

func applyEndpoint(ctx context.Context, tx *store.Store, ev Event, a *activity.Activity) error {
	endpoint := ev.Arg("endpoint", "endpointAddress")
	if a.NodeID == nil || endpoint == "" {
		return nil
	}
	return tx.SetEndpoint(ctx, *a.NodeID, activity.NormalizeAddress(endpoint))
}
