package apikey

import (
	"time"

	"gorm.io/datatypes"
)

type APIKeyStatus string

const (
	APIKeyStatusActive  APIKeyStatus = "active"
	APIKeyStatusRevoked APIKeyStatus = "revoked"
)

// Scopes a credential may be granted. Verification of inbound calls against
// these scopes is the gateway's job; this service only validates issuance.
var KnownScopes = map[string]bool{
	"orders:read":    true,
	"orders:write":   true,
	"catalog:read":   true,
	"catalog:write":  true,
	"payments:read":  true,
	"webhooks:read":  true,
	"webhooks:write": true,
}

type APIKey struct {
	ID         string                      `gorm:"column:id;primaryKey"`
	TenantID   string                      `gorm:"column:tenant_id;not null;index"`
	Name       string                      `gorm:"column:name;not null"`
	KeyID      string                      `gorm:"column:key_id;uniqueIndex;not null"` // e.g. vayva_a1b2c3d4
	SecretHash string                      `gorm:"column:secret_hash;not null"`        // sha256 hex (BUKAN plaintext)
	Scopes     datatypes.JSONSlice[string] `gorm:"column:scopes;not null"`
	Status     APIKeyStatus                `gorm:"column:status;default:'active';not null"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	RevokedAt  *time.Time                  `gorm:"column:revoked_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// View is the listing shape: no hash, no raw key.
type View struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	Name      string       `json:"name"`
	KeyID     string       `json:"key_id"`
	Scopes    []string     `json:"scopes"`
	Status    APIKeyStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
}

func (m *APIKey) ToView() *View {
	return &View{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		KeyID:     m.KeyID,
		Scopes:    m.Scopes,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		RevokedAt: m.RevokedAt,
	}
}
