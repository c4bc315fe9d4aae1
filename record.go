package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	ErrNoSubject        = errors.New("nodeId or userAddress is required")
	ErrMissingEventType = errors.New("eventType is required")
)

// ClampLimit applies the default for non-positive limits and the server ceiling.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Subject selects the activity feed of a node or of a user. NodeID wins when
// both are set.
type Subject struct {
	NodeID      string
	UserAddress string
}

func NodeSubject(id string) Subject { return Subject{NodeID: id} }

func UserSubject(addr string) Subject { return Subject{UserAddress: NormalizeAddress(addr)} }

func (s Subject) Validate() error {
	if s.NodeID == "" && s.UserAddress == "" {
		return ErrNoSubject
	}
	return nil
}

// Key identifies the subject for request coalescing.
func (s Subject) Key() string {
	if s.NodeID != "" {
		return "node:" + s.NodeID
	}
	return "user:" + NormalizeAddress(s.UserAddress)
}

// NormalizeAddress lower-cases and trims an account address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Record is the wire shape served to clients. Field names are emitted in
// both camelCase and snake_case.
type Record struct {
	ID               string          `json:"id"`
	NodeID           *string         `json:"nodeId"`
	NodeIDSnake      *string         `json:"node_id"`
	UserAddress      *string         `json:"userAddress"`
	UserAddressSnake *string         `json:"user_address"`
	EventType        string          `json:"eventType"`
	EventTypeSnake   string          `json:"event_type"`
	Data             json.RawMessage `json:"data"`
	Timestamp        string          `json:"timestamp"`
}

// Record renders the activity in its wire shape. A payload that is not valid
// JSON is served as a JSON string.
func (a Activity) Record() Record {
	data := json.RawMessage("null")
	if len(a.Data) > 0 {
		if json.Valid(a.Data) {
			data = json.RawMessage(a.Data)
		} else if b, err := json.Marshal(string(a.Data)); err == nil {
			data = b
		}
	}
	return Record{
		ID:               a.ID,
		NodeID:           a.NodeID,
		NodeIDSnake:      a.NodeID,
		UserAddress:      a.UserAddress,
		UserAddressSnake: a.UserAddress,
		EventType:        a.EventType,
		EventTypeSnake:   a.EventType,
		Data:             data,
		Timestamp:        a.Timestamp,
	}
}

func Records(acts []Activity) []Record {
	out := make([]Record, 0, len(acts))
	for _, a := range acts {
		out = append(out, a.Record())
	}
	return out
}

// NaturalKey is the id of a chain-sourced event.
func NaturalKey(txHash string, logIndex int64) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(txHash), logIndex)
}

// Normalize converts an upstream event of any known shape into an Activity.
// Id and Timestamp are left empty when the source carries neither; the
// writer fills them.
func Normalize(raw map[string]any) (*Activity, error) {
	if raw == nil {
		return nil, errors.New("empty event")
	}

	eventType, _ := lookupString(raw, "eventType", "event_type", "event")
	if eventType == "" {
		return nil, ErrMissingEventType
	}

	a := &Activity{EventType: eventType}

	if id, ok := lookupString(raw, "id"); ok && id != "" {
		a.ID = id
	} else if tx, ok := lookupString(raw, "transactionHash", "transaction_hash", "txHash"); ok && tx != "" {
		idx, ok := lookupString(raw, "logIndex", "log_index")
		if !ok {
			return nil, fmt.Errorf("event %s: transaction hash without log index", tx)
		}
		n, err := strconv.ParseInt(idx, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event %s: log index %q: %w", tx, idx, err)
		}
		a.ID = NaturalKey(tx, n)
	}

	if nodeID, ok := lookupString(raw, "nodeId", "node_id"); ok && nodeID != "" {
		a.NodeID = &nodeID
	}
	if addr, ok := lookupString(raw, "userAddress", "user_address"); ok {
		if addr = NormalizeAddress(addr); addr != "" {
			a.UserAddress = &addr
		}
	}

	if v, ok := lookup(raw, "timestamp", "blockTimestamp", "block_timestamp"); ok && v != nil {
		t, err := ParseTimestamp(v)
		if err != nil {
			return nil, err
		}
		a.Timestamp = FormatTimestamp(t)
	}

	if v, ok := raw["data"]; ok && v != nil {
		b, err := EncodeData(v)
		if err != nil {
			return nil, err
		}
		a.Data = b
	}
	return a, nil
}

// EncodeData serializes a payload. Strings are stored as they are.
func EncodeData(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case json.RawMessage:
		return x, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode data: %w", err)
		}
		return b, nil
	}
}

func lookup(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func lookupString(raw map[string]any, keys ...string) (string, bool) {
	v, ok := lookup(raw, keys...)
	if !ok || v == nil {
		return "", false
	}
	return Stringify(v)
}

// Stringify renders scalar JSON values as strings. Whole floats lose their
// fractional suffix so numeric node ids match their string form.
func Stringify(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
