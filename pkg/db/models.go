package db

import (
	"encoding/json"
	"time"
)

// AuditRecord is a stored audit log record.
type AuditRecord struct {
	ID          string          `json:"id"`
	ClientCode  string          `json:"clientCode"`
	Entity      string          `json:"entity"`
	EntityID    string          `json:"entityId"`
	Type        string          `json:"type"`
	UserCreated *string         `json:"userCreated,omitempty"`
	Log         json.RawMessage `json:"log"`
	Created     time.Time       `json:"created"`
}

// ActiveClient is a tenant record used for active-client resolution.
type ActiveClient struct {
	ID       string          `json:"id"`
	Code     string          `json:"code"`
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Modified time.Time       `json:"modified"`
}

// Client statuses.
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)
