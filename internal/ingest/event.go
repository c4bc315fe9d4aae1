// Package ingest applies indexer events to the store. Events may arrive more
// than once and out of order; every handler is safe to replay.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/willwe-dev/activity"
)

// Event kinds emitted by the protocol contracts.
const (
	Transfer             = "Transfer"
	Burn                 = "Burn"
	Mint                 = "Mint"
	MembershipMinted     = "MembershipMinted"
	InflationRateChanged = "InflationRateChanged"
	MembraneChanged      = "MembraneChanged"
	Signaled             = "Signaled"
	MovementCreated      = "MovementCreated"
	MovementSigned       = "MovementSigned"
	MovementExecuted     = "MovementExecuted"
	NewBranch            = "NewBranch"
	NewRootBranch        = "NewRootBranch"
	ConfigSignal         = "ConfigSignal"
	CreatedEndpoint      = "CreatedEndpoint"
	WillWeSet            = "WillWeSet"
	SelfControlAtAddress = "SelfControlAtAddress"
	TestEvent            = "TestEvent"
)

// Event is one decoded contract log as delivered by the indexer.
type Event struct {
	Name           string         `json:"event"`
	TxHash         string         `json:"transactionHash"`
	LogIndex       int64          `json:"logIndex"`
	BlockNumber    uint64         `json:"blockNumber"`
	BlockTimestamp json.Number    `json:"blockTimestamp"`
	Args           map[string]any `json:"args"`
}

// DecodeEvent parses a message value, keeping numeric args as json.Number.
func DecodeEvent(b []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (ev Event) Validate() error {
	if strings.TrimSpace(ev.Name) == "" {
		return activity.ErrMissingEventType
	}
	if ev.TxHash == "" {
		return errors.New("event without transaction hash")
	}
	return nil
}

// ID is the event's natural key.
func (ev Event) ID() string {
	return activity.NaturalKey(ev.TxHash, ev.LogIndex)
}

// Timestamp is the block time in the stored format. Empty when the
// indexer did not supply one.
func (ev Event) Timestamp() (string, error) {
	if ev.BlockTimestamp == "" {
		return "", nil
	}
	t, err := activity.ParseTimestamp(ev.BlockTimestamp)
	if err != nil {
		return "", err
	}
	return activity.FormatTimestamp(t), nil
}

// Arg returns the first argument present under any of keys as a string.
func (ev Event) Arg(keys ...string) string {
	for _, k := range keys {
		if v, ok := ev.Args[k]; ok && v != nil {
			if s, ok := activity.Stringify(v); ok {
				return s
			}
		}
	}
	return ""
}

// Amount returns a decimal integer argument.
func (ev Event) Amount(keys ...string) (*big.Int, error) {
	s := ev.Arg(keys...)
	if s == "" {
		return nil, fmt.Errorf("%s: missing %s", ev.Name, strings.Join(keys, "/"))
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", ev.Name, s)
	}
	return n, nil
}

// Payload is the JSON stored in the activity row.
func (ev Event) Payload() map[string]any {
	data := make(map[string]any, len(ev.Args)+2)
	for k, v := range ev.Args {
		data[k] = v
	}
	data["transactionHash"] = ev.TxHash
	data["blockNumber"] = ev.BlockNumber
	return data
}
