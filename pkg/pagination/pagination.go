package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params holds keyset pagination inputs taken from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points just past the last row of the previous page.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks for one extra row so callers can tell whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor returns nil for an empty value. A malformed cursor is a
// CodeValidation error.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, invalidCursor(err, "cursor is not valid base64")
	}
	at, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, invalidCursor(nil, "cursor format is invalid")
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, invalidCursor(err, "cursor timestamp is invalid")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, invalidCursor(err, "cursor id is invalid")
	}
	return &Cursor{At: ts, ID: parsed}, nil
}

func invalidCursor(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg).WithDetails(map[string]any{"cursor": "is invalid"})
}
