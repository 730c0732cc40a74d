package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const tokenVersion = "1"

// Cursor is a keyset position over (created_at DESC, id DESC) orderings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// EncodeToken renders the cursor as an opaque URL-safe token. Timestamps keep microsecond
// precision, matching what PostgreSQL stores.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.IsZero() {
		return "", nil
	}
	if cursor.ID == "" || strings.Contains(cursor.ID, ".") {
		return "", fmt.Errorf("pagination: encode token: invalid id %q", cursor.ID)
	}
	raw := tokenVersion + "." + strconv.FormatInt(cursor.CreatedAt.UTC().UnixMicro(), 10) + "." + cursor.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeToken parses a token produced by EncodeToken. An empty token yields the zero cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: not base64", ErrInvalidPageToken)
	}
	parts := strings.SplitN(string(decoded), ".", 3)
	if len(parts) != 3 || parts[0] != tokenVersion {
		return Cursor{}, fmt.Errorf("%w: unsupported format", ErrInvalidPageToken)
	}
	micros, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || micros < 0 {
		return Cursor{}, fmt.Errorf("%w: bad timestamp", ErrInvalidPageToken)
	}
	if parts[2] == "" {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidPageToken)
	}
	return Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: parts[2]}, nil
}
