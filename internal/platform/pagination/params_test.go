package pagination

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if !params.Cursor.IsZero() {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
}

func TestParsePageSizeClamp(t *testing.T) {
	values := url.Values{}
	values.Set("pageSize", "400")
	params, err := Parse(values, Options{DefaultPageSize: 25, MaxPageSize: 40})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 40 {
		t.Fatalf("expected page size clamped to 40 got %d", params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize %q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), ID: "01HXYZ"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	values := url.Values{}
	values.Set("pageToken", token)
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) || params.Cursor.ID != cursor.ID {
		t.Fatalf("unexpected cursor %#v", params.Cursor)
	}
}

func TestParseInvalidToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", "%%%")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestEncodeZeroCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil || token != "" {
		t.Fatalf("expected empty token, got %q err=%v", token, err)
	}
}

func TestTokenKeepsMicroseconds(t *testing.T) {
	created := time.Date(2025, 5, 1, 10, 0, 0, 123456789, time.FixedZone("PET", -5*3600))
	token, err := EncodeToken(Cursor{CreatedAt: created, ID: "01HXYZ"})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if want := created.UTC().Truncate(time.Microsecond); !cursor.CreatedAt.Equal(want) || cursor.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected %v, got %v", want, cursor.CreatedAt)
	}
}

func TestDecodeTokenRejectsForeignFormats(t *testing.T) {
	for _, raw := range []string{"2.100.abc", "1.notanumber.abc", "1.100.", "1.100"} {
		token := base64.RawURLEncoding.EncodeToString([]byte(raw))
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("%q: expected ErrInvalidPageToken, got %v", raw, err)
		}
	}
}
