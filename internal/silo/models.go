// Package silo defines the domain entities for the silo monitoring pipeline.
package silo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Severity is the ordered alert severity level.
type Severity string

const (
	// SeverityWarning marks conditions worth attention but not immediate action.
	SeverityWarning Severity = "warning"
	// SeverityCritical marks conditions requiring immediate action.
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparison. Higher is more severe.
var severityRank = map[Severity]int{
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// SeverityLess reports whether a is strictly less severe than b.
// Unknown severities rank below warning.
func SeverityLess(a, b Severity) bool {
	return severityRank[a] < severityRank[b]
}

// EventSiloOpened is emitted when the luminosity transition indicates
// the silo hatch was opened.
const EventSiloOpened = "silo_opened"

// Reading is one telemetry sample for one silo. Readings are immutable
// once stored; duplicates by (silo, timestamp) are legal and suppression
// is the dedup gate's concern, not a storage constraint.
type Reading struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiloID          uuid.UUID      `gorm:"type:uuid;index:idx_silo_timestamp,priority:1;not null" json:"silo_id"`
	DeviceID        string         `json:"device_id"`
	Timestamp       time.Time      `gorm:"index:idx_silo_timestamp,priority:2,sort:desc;not null" json:"timestamp"`
	Temperature     *float64       `json:"temperature"`
	Humidity        *float64       `json:"humidity"`
	Gas             *float64       `json:"gas"`
	LuminosityAlert *int           `json:"luminosity_alert"`
	Lux             *float64       `json:"lux"`
	Raw             datatypes.JSON `json:"raw"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the Reading model.
func (Reading) TableName() string {
	return "readings"
}

// Silo is a monitored physical storage unit. Threshold and notification
// configuration fields are all optional; absence disables that rule or
// channel. The pipeline treats silos as read-only.
type Silo struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	DeviceID      string    `json:"device_id"`
	FeedChannelID *int64    `json:"feed_channel_id"`
	FeedReadKey   *string   `json:"-"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`

	MaxTemperature *float64 `json:"max_temperature"`
	MaxHumidity    *float64 `json:"max_humidity"`
	MaxGas         *float64 `json:"max_gas"`

	NotifyTelegram bool `gorm:"default:false" json:"notify_telegram"`
	NotifyEmail    bool `gorm:"default:true" json:"notify_email"`
	NotifySMS      bool `gorm:"default:false" json:"notify_sms"`

	TelegramChatID *string `json:"telegram_chat_id"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`

	TelegramTemplate     *string `json:"telegram_template"`
	EmailSubjectTemplate *string `json:"email_subject_template"`
	EmailBodyTemplate    *string `json:"email_body_template"`
	SMSTemplate          *string `json:"sms_template"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the Silo model.
func (Silo) TableName() string {
	return "silos"
}

// SiloEvent is a discrete detected state transition, append-only.
type SiloEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiloID    uuid.UUID      `gorm:"type:uuid;index;not null" json:"silo_id"`
	EventType string         `gorm:"not null" json:"event_type"`
	Payload   datatypes.JSON `json:"payload"`
	Timestamp time.Time      `gorm:"not null" json:"timestamp"`
}

// TableName specifies the table name for the SiloEvent model.
func (SiloEvent) TableName() string {
	return "silo_events"
}

// Alert is a persisted, acknowledgeable record of an actionable condition.
// Acknowledgment is monotonic: once set it is never reversed, and it is
// the only mutation allowed after creation.
type Alert struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiloID       uuid.UUID      `gorm:"type:uuid;index;not null" json:"silo_id"`
	Level        Severity       `gorm:"not null" json:"level"`
	Message      string         `gorm:"not null" json:"message"`
	Value        datatypes.JSON `json:"value"`
	Timestamp    time.Time      `gorm:"index;not null" json:"timestamp"`
	Acknowledged bool           `gorm:"default:false" json:"acknowledged"`
	AckBy        *uuid.UUID     `gorm:"type:uuid" json:"ack_by"`
	AckAt        *time.Time     `json:"ack_at"`
}

// TableName specifies the table name for the Alert model.
func (Alert) TableName() string {
	return "alerts"
}

// PushSubscription is a web-push endpoint. It is created by the browser
// subscribe flow and deleted by the notification dispatcher when the
// provider reports the endpoint permanently gone. A nil SiloID means the
// subscription receives alerts for every silo.
type PushSubscription struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Endpoint  string     `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256dh    string     `gorm:"not null" json:"p256dh"`
	Auth      string     `gorm:"not null" json:"auth"`
	SiloID    *uuid.UUID `gorm:"type:uuid;index" json:"silo_id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the PushSubscription model.
func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
