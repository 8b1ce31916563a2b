package outbox

// QueuedRequest is a deferred side-effecting call captured while offline.
// Entries replay strictly in enqueue order and are removed only after the
// server confirms success.
type QueuedRequest struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Target           string `gorm:"column:target;size:512;not null"`
	Method           string `gorm:"column:method;size:8;not null"`
	BodyJSON         string `gorm:"column:body_json;type:text;not null"`
	HeadersJSON      string `gorm:"column:headers_json;type:text;not null;default:'{}'"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_sync_queue_created"`
}

// TableName provides the explicit table binding for GORM.
func (QueuedRequest) TableName() string {
	return "sync_queue"
}
