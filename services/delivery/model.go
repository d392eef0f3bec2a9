package delivery

import (
	"time"
)

type AttemptStatus string

const (
	StatusPending   AttemptStatus = "PENDING"
	StatusDelivered AttemptStatus = "DELIVERED"
	StatusFailed    AttemptStatus = "FAILED"
	StatusDead      AttemptStatus = "DEAD"
)

// Attempt tracks the delivery of one event to one endpoint. The row itself is
// the unit of concurrency control: a worker claims it with a conditional
// update before sending, so no two workers process the same attempt.
//
// Invariants: AttemptCount only increases; NextRetryAt is null iff the status
// is terminal (DELIVERED or DEAD).
type Attempt struct {
	ID              string        `gorm:"column:id;primaryKey"`
	TenantID        string        `gorm:"column:tenant_id;not null;index"`
	EndpointID      string        `gorm:"column:endpoint_id;not null;index;uniqueIndex:idx_event_endpoint,priority:2"`
	EventID         string        `gorm:"column:event_id;not null;uniqueIndex:idx_event_endpoint,priority:1"`
	EventType       string        `gorm:"column:event_type;not null"` // denormalized for listing without a join
	Status          AttemptStatus `gorm:"column:status;default:'PENDING';not null;index:idx_due,priority:1"`
	AttemptCount    int           `gorm:"column:attempt_count;default:0;not null"`
	ResponseCode    *int          `gorm:"column:response_code"`
	ResponseSnippet string        `gorm:"column:response_snippet"`
	NextRetryAt     *time.Time    `gorm:"column:next_retry_at;index:idx_due,priority:2"`
	DeliveredAt     *time.Time    `gorm:"column:delivered_at"`
	CreatedAt       time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

func (Attempt) TableName() string {
	return "webhook_deliveries"
}

type View struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenant_id"`
	EndpointID      string        `json:"endpoint_id"`
	EventID         string        `json:"event_id"`
	EventType       string        `json:"event_type"`
	Status          AttemptStatus `json:"status"`
	AttemptCount    int           `json:"attempt_count"`
	ResponseCode    *int          `json:"response_code,omitempty"`
	ResponseSnippet string        `json:"response_snippet,omitempty"`
	NextRetryAt     *time.Time    `json:"next_retry_at,omitempty"`
	DeliveredAt     *time.Time    `json:"delivered_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (m *Attempt) ToView() *View {
	return &View{
		ID:              m.ID,
		TenantID:        m.TenantID,
		EndpointID:      m.EndpointID,
		EventID:         m.EventID,
		EventType:       m.EventType,
		Status:          m.Status,
		AttemptCount:    m.AttemptCount,
		ResponseCode:    m.ResponseCode,
		ResponseSnippet: m.ResponseSnippet,
		NextRetryAt:     m.NextRetryAt,
		DeliveredAt:     m.DeliveredAt,
		CreatedAt:       m.CreatedAt,
	}
}
