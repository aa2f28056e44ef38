package models

import "time"

// RequestLog is one served HTTP request.
type RequestLog struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	RequestID string    `json:"request_id" gorm:"column:request_id;type:char(26);index"`
	Method    string    `json:"method" gorm:"column:method;type:varchar(8)"`
	Path      string    `json:"path" gorm:"column:path"`
	Status    int       `json:"status" gorm:"column:status"`
	LatencyMs int64     `json:"latency_ms" gorm:"column:latency_ms"`
	ClientIP  string    `json:"client_ip" gorm:"column:client_ip;type:varchar(64)"`
	UserID    string    `json:"user_id,omitempty" gorm:"column:user_id;type:varchar(36);index"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}
