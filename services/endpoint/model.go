package endpoint

import (
	"time"

	"gorm.io/datatypes"
)

type EndpointStatus string

const (
	EndpointStatusActive   EndpointStatus = "active"
	EndpointStatusPaused   EndpointStatus = "paused"
	EndpointStatusDisabled EndpointStatus = "disabled"
)

func (s EndpointStatus) Valid() bool {
	switch s {
	case EndpointStatusActive, EndpointStatusPaused, EndpointStatusDisabled:
		return true
	default:
		return false
	}
}

type Endpoint struct {
	ID               string                      `gorm:"column:id;primaryKey"`
	TenantID         string                      `gorm:"column:tenant_id;not null;index"`
	URL              string                      `gorm:"column:url;not null"`
	SecretEnc        string                      `gorm:"column:secret_enc;not null"` // AES-256-GCM, platform key
	SubscribedEvents datatypes.JSONSlice[string] `gorm:"column:subscribed_events;not null"`
	Status           EndpointStatus              `gorm:"column:status;default:'active';not null"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Endpoint) TableName() string {
	return "webhook_endpoints"
}

// Subscribed reports whether the endpoint listens for the given event type.
func (m *Endpoint) Subscribed(eventType string) bool {
	for _, t := range m.SubscribedEvents {
		if t == eventType {
			return true
		}
	}
	return false
}

// View is the listing shape: the signing secret never leaves the engine.
type View struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	URL              string         `json:"url"`
	SubscribedEvents []string       `json:"events"`
	Status           EndpointStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (m *Endpoint) ToView() *View {
	return &View{
		ID:               m.ID,
		TenantID:         m.TenantID,
		URL:              m.URL,
		SubscribedEvents: m.SubscribedEvents,
		Status:           m.Status,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
