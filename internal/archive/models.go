package archive

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ObservationRecord is one archived station observation. (StationID, TS) is unique so
// re-polling an unchanged latest observation is a no-op.
type ObservationRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StationID string         `gorm:"uniqueIndex:idx_station_ts,priority:1;not null" json:"station_id"`
	TS        time.Time      `gorm:"uniqueIndex:idx_station_ts,priority:2;not null" json:"ts"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	FetchedAt time.Time      `json:"fetched_at"`
}
