package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity holds the identity and timestamp columns every aggregate
// embeds. IDs are generated in the application so entities are fully
// formed before they reach the database.
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBaseEntity returns a BaseEntity with a fresh ID and both
// timestamps set to now.
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}
