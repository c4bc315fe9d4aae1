package activity

import (
	"gorm.io/datatypes"
)

// Activity is one observed protocol event cached in the activity_logs table.
// Rows are written once and never updated.
type Activity struct {
	ID          string         `json:"id" gorm:"primaryKey;type:text"`
	NodeID      *string        `json:"nodeId" gorm:"column:node_id;type:text;index"`
	UserAddress *string        `json:"userAddress" gorm:"column:user_address;type:text;index"`
	EventType   string         `json:"eventType" gorm:"column:event_type;type:text;not null"`
	Data        datatypes.JSON `json:"data" gorm:"type:text"`
	Timestamp   string         `json:"timestamp" gorm:"type:text;index"`
}

func (Activity) TableName() string {
	return "activity_logs"
}

type ChatMessage struct {
	ID          string `json:"id" gorm:"primaryKey;type:text"`
	NodeID      string `json:"nodeId" gorm:"column:node_id;type:text;not null;index"`
	UserAddress string `json:"userAddress" gorm:"column:user_address;type:text;not null"`
	Content     string `json:"content" gorm:"type:text;not null"`
	NetworkID   string `json:"networkId,omitempty" gorm:"column:network_id;type:text"`
	Timestamp   string `json:"timestamp" gorm:"type:text;index"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

type User struct {
	Address   string `json:"address" gorm:"primaryKey;type:text"`
	FirstSeen string `json:"firstSeen" gorm:"column:first_seen;type:text"`
}

// Node is the local view of a protocol node. TotalSupply and InflationRate
// are decimal integers kept as text to hold full uint256 values.
type Node struct {
	ID            string  `json:"id" gorm:"primaryKey;type:text"`
	ParentID      *string `json:"parentId" gorm:"column:parent_id;type:text;index"`
	TotalSupply   string  `json:"totalSupply" gorm:"column:total_supply;type:text;default:'0'"`
	InflationRate string  `json:"inflationRate" gorm:"column:inflation_rate;type:text"`
	MembraneID    string  `json:"membraneId" gorm:"column:membrane_id;type:text"`
	Endpoint      string  `json:"endpoint,omitempty" gorm:"type:text"`
	CreatedAt     string  `json:"createdAt" gorm:"column:created_at;type:text"`
}

func (Node) TableName() string {
	return "nodes"
}

type Movement struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	NodeID         string         `json:"nodeId" gorm:"column:node_id;type:text;index"`
	Creator        string         `json:"creator" gorm:"type:text"`
	Data           datatypes.JSON `json:"data" gorm:"type:text"`
	SignatureCount int            `json:"signatureCount" gorm:"column:signature_count;default:0"`
	Executed       bool           `json:"executed" gorm:"default:false"`
	CreatedAt      string         `json:"createdAt" gorm:"column:created_at;type:text;index"`
	ExecutedAt     *string        `json:"executedAt,omitempty" gorm:"column:executed_at;type:text"`
}

func (Movement) TableName() string {
	return "movements"
}

type Signature struct {
	ID         string `json:"id" gorm:"primaryKey;type:text"`
	MovementID string `json:"movementId" gorm:"column:movement_id;type:text;not null;index"`
	NodeID     string `json:"nodeId" gorm:"column:node_id;type:text"`
	Signer     string `json:"signer" gorm:"type:text;not null"`
	Timestamp  string `json:"timestamp" gorm:"type:text"`
}

func (Signature) TableName() string {
	return "signatures"
}

type MembraneRecord struct {
	ID        string         `json:"id" gorm:"primaryKey;type:text"`
	NodeID    *string        `json:"nodeId" gorm:"column:node_id;type:text;index"`
	Creator   string         `json:"creator" gorm:"type:text"`
	Data      datatypes.JSON `json:"data" gorm:"type:text"`
	CreatedAt string         `json:"createdAt" gorm:"column:created_at;type:text"`
}

func (MembraneRecord) TableName() string {
	return "membranes"
}

type UserPreference struct {
	UserAddress string         `json:"userAddress" gorm:"column:user_address;primaryKey;type:text"`
	Data        datatypes.JSON `json:"data" gorm:"type:text"`
	UpdatedAt   string         `json:"updatedAt" gorm:"column:updated_at;type:text"`
}

func (UserPreference) TableName() string {
	return "user_preferences"
}

// Models lists every table the service migrates.
func Models() []any {
	return []any{
		&Activity{},
		&ChatMessage{},
		&User{},
		&Node{},
		&Movement{},
		&Signature{},
		&MembraneRecord{},
		&UserPreference{},
	}
}
