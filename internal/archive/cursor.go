package archive

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("archive: invalid cursor")

// Cursor marks the last record of a page. It is bound to the station it was issued for.
type Cursor struct {
	StationID string
	TS        time.Time
	ID        uuid.UUID
}

// EncodeCursor packs the cursor as station:unixnano:id, URL-safe base64.
func EncodeCursor(c Cursor) string {
	raw := c.StationID + ":" + strconv.FormatInt(c.TS.UnixNano(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor returns nil for an empty string.
func DecodeCursor(v string) (*Cursor, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.Split(string(b), ":")
	if len(parts) != 3 || parts[0] == "" {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{StationID: parts[0], TS: time.Unix(0, nanos).UTC(), ID: id}, nil
}
