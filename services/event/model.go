package event

import (
	"time"

	"gorm.io/datatypes"
)

// Event is the write-once record of a published domain event. It is the
// permanent source of truth for the payload and outlives all its deliveries.
type Event struct {
	ID        string         `gorm:"column:id;primaryKey"`
	TenantID  string         `gorm:"column:tenant_id;not null;index"`
	Type      string         `gorm:"column:type;not null"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Event) TableName() string {
	return "webhook_events"
}

type View struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Type      string         `json:"type"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (m *Event) ToView() *View {
	return &View{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Type:      m.Type,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}
}
