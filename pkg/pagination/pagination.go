// Package pagination encodes keyset cursors for wallet ledger history. A
// cursor points at the last transaction of the previous page in
// (created_at, id) descending order and is bound to the wallet that issued it.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many ledger rows one page can return.
	MaxLimit = 100

	cursorVersion = 1
)

// ErrInvalidCursor is returned for cursors that do not decode, carry an
// unknown version, or belong to another wallet.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds the page request from the transactions endpoint.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor resumes a wallet history after TransactionID.
type Cursor struct {
	WalletID      uuid.UUID
	CreatedAt     time.Time
	TransactionID uuid.UUID
}

type wireCursor struct {
	Version   int       `json:"v"`
	WalletID  uuid.UUID `json:"w"`
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// NormalizeLimit enforces the default and maximum page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row to detect a next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders c as URL-safe base64 so it can travel in a query
// string unescaped.
func EncodeCursor(c Cursor) string {
	raw, err := json.Marshal(wireCursor{
		Version:   cursorVersion,
		WalletID:  c.WalletID,
		CreatedAt: c.CreatedAt.UTC(),
		ID:        c.TransactionID,
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes value for walletID. An empty value is the first page
// and returns nil.
func ParseCursor(value string, walletID uuid.UUID) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var wire wireCursor
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	switch {
	case wire.Version != cursorVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCursor, wire.Version)
	case wire.WalletID != walletID:
		return nil, fmt.Errorf("%w: issued for another wallet", ErrInvalidCursor)
	case wire.ID == uuid.Nil || wire.CreatedAt.IsZero():
		return nil, fmt.Errorf("%w: missing position", ErrInvalidCursor)
	}
	return &Cursor{WalletID: wire.WalletID, CreatedAt: wire.CreatedAt, TransactionID: wire.ID}, nil
}
