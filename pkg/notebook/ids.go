// Package notebook defines the collaborative notebook document model: the
// typed cell/annotation/label/data-source data it is built from and the
// invariants that must hold for any notebook value.
package notebook

import (
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when a string does not parse as a Base64Uuid in
// either its canonical or hyphenated form.
var ErrInvalidID = errors.New("notebook: invalid id")

// Base64Uuid is a base64url-encoded 128-bit value used as the identifier for
// notebooks and cells. Its canonical wire form is 22 characters of unpadded
// base64url; the parser also accepts the 36-character hyphenated UUID form.
type Base64Uuid struct {
	uuid uuid.UUID
}

// NewID generates a fresh random Base64Uuid.
func NewID() Base64Uuid {
	return Base64Uuid{uuid: uuid.New()}
}

// NilID returns the all-zero Base64Uuid.
func NilID() Base64Uuid {
	return Base64Uuid{}
}

// ParseBase64Uuid parses either the 22-char base64url form or the 36-char
// hyphenated form.
func ParseBase64Uuid(s string) (Base64Uuid, error) {
	switch len(s) {
	case 22:
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil || len(b) != 16 {
			return Base64Uuid{}, ErrInvalidID
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return Base64Uuid{}, ErrInvalidID
		}
		return Base64Uuid{uuid: id}, nil
	case 36:
		id, err := uuid.Parse(s)
		if err != nil {
			return Base64Uuid{}, ErrInvalidID
		}
		return Base64Uuid{uuid: id}, nil
	default:
		return Base64Uuid{}, ErrInvalidID
	}
}

// String renders the canonical 22-character base64url form.
func (id Base64Uuid) String() string {
	b := id.uuid[:]
	return base64.RawURLEncoding.EncodeToString(b)
}

// IsNil reports whether id is the all-zero value.
func (id Base64Uuid) IsNil() bool {
	return id.uuid == uuid.Nil
}

// MarshalJSON emits the canonical 22-char form.
func (id Base64Uuid) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts either supported form.
func (id *Base64Uuid) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return ErrInvalidID
	}
	parsed, err := ParseBase64Uuid(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ErrInvalidName is returned when a resource name fails grammar validation.
var ErrInvalidName = errors.New("notebook: invalid name")

// Name is a 1-63 character, lowercase-alphanumeric-and-dash resource name
// (workspace names, data source names, and similar).
type Name string

// NewName validates and constructs a Name.
func NewName(s string) (Name, error) {
	if err := ValidateName(s); err != nil {
		return "", err
	}
	return Name(s), nil
}

// ValidateName checks the grammar: 1-63 chars from [a-z0-9-], starting
// and ending alphanumeric.
func ValidateName(s string) error {
	if len(s) < 1 || len(s) > 63 {
		return ErrInvalidName
	}
	for _, c := range s {
		if !isLowerAlnum(c) && c != '-' {
			return ErrInvalidName
		}
	}
	first, last := rune(s[0]), rune(s[len(s)-1])
	if !isLowerAlnum(first) || !isLowerAlnum(last) {
		return ErrInvalidName
	}
	return nil
}

func isLowerAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
