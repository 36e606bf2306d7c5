// Package archive persists polled station observations.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	defaultLimit = 500
	maxLimit     = 5000
)

type Repo struct {
	db *gorm.DB
}

type PostgresConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func OpenPostgres(cfg PostgresConfig) (*gorm.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

func OpenSQLite(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "weather-finder.db"
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// Open picks the driver by name ("sqlite" or "postgres").
func Open(driver, sqliteDSN string, pg PostgresConfig) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		return OpenSQLite(sqliteDSN)
	case "postgres", "postgresql":
		return OpenPostgres(pg)
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", driver)
	}
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&ObservationRecord{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

// InsertObservation stores rec unless an observation for the same station and timestamp is
// already archived. It reports whether a row was written.
func (r *Repo) InsertObservation(ctx context.Context, rec *ObservationRecord) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}
	rec.TS = rec.TS.UTC()
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "ts"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type Page struct {
	Records    []ObservationRecord `json:"records"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

func (r *Repo) ListObservations(ctx context.Context, stationID string, from, to time.Time, limit int, cursor *Cursor, desc bool) (Page, error) {
	if cursor != nil && cursor.StationID != stationID {
		return Page{}, ErrInvalidCursor
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	exprs := []clause.Expression{
		clause.Eq{Column: clause.Column{Name: "station_id"}, Value: stationID},
	}
	if !from.IsZero() {
		exprs = append(exprs, clause.Gte{Column: clause.Column{Name: "ts"}, Value: from.UTC()})
	}
	if !to.IsZero() {
		exprs = append(exprs, clause.Lte{Column: clause.Column{Name: "ts"}, Value: to.UTC()})
	}
	if cursor != nil {
		if desc {
			exprs = append(exprs, clause.Or(
				clause.Lt{Column: clause.Column{Name: "ts"}, Value: cursor.TS},
				clause.And(
					clause.Eq{Column: clause.Column{Name: "ts"}, Value: cursor.TS},
					clause.Lt{Column: clause.Column{Name: "id"}, Value: cursor.ID},
				),
			))
		} else {
			exprs = append(exprs, clause.Or(
				clause.Gt{Column: clause.Column{Name: "ts"}, Value: cursor.TS},
				clause.And(
					clause.Eq{Column: clause.Column{Name: "ts"}, Value: cursor.TS},
					clause.Gt{Column: clause.Column{Name: "id"}, Value: cursor.ID},
				),
			))
		}
	}

	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "ts"}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}

	var rows []ObservationRecord
	q := r.db.WithContext(ctx).Clauses(clause.Where{Exprs: exprs}, order).Limit(limit + 1)
	if err := q.Find(&rows).Error; err != nil {
		return Page{}, err
	}

	out := Page{Records: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		out.Records = rows[:limit]
		out.NextCursor = EncodeCursor(Cursor{StationID: stationID, TS: last.TS, ID: last.ID})
	}
	return out, nil
}
