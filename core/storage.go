package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a key holds no value.
	ErrNotFound = errors.New("key not found")
	// ErrNotSignedIn is returned when a remote operation runs without an account.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrSubdomainTaken is returned by Hosting.Create when the name is already used.
	ErrSubdomainTaken = errors.New("subdomain already taken")
)

// ValueKind tags what a store handed back, decided by the store itself.
type ValueKind int

const (
	KindBinary ValueKind = iota
	KindText
	KindParsed
)

func (k ValueKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	case KindParsed:
		return "parsed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseValueKind is the inverse of ValueKind.String. Unknown names map to KindBinary.
func ParseValueKind(s string) ValueKind {
	switch s {
	case "text":
		return KindText
	case "parsed":
		return KindParsed
	}
	return KindBinary
}

// Value is a stored item with an explicit kind tag.
type Value struct {
	Kind   ValueKind
	Bytes  []byte
	Parsed any
}

func BinaryValue(b []byte) Value { return Value{Kind: KindBinary, Bytes: b} }

func TextValue(s string) Value { return Value{Kind: KindText, Bytes: []byte(s)} }

func ParsedValue(v any) Value { return Value{Kind: KindParsed, Parsed: v} }

// Encode returns the bytes a byte-oriented store persists for v.
func (v Value) Encode() ([]byte, error) {
	if v.Kind == KindParsed {
		return json.Marshal(v.Parsed)
	}
	return v.Bytes, nil
}

// DecodeJSON unmarshals v into out. Binary and text values are parsed as JSON text;
// parsed values are re-encoded first unless they already have out's type.
func (v Value) DecodeJSON(out any) error {
	switch v.Kind {
	case KindBinary, KindText:
		return json.Unmarshal(v.Bytes, out)
	case KindParsed:
		data, err := json.Marshal(v.Parsed)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	return fmt.Errorf("unknown value kind %v", v.Kind)
}

// Raw returns v as JSON text.
func (v Value) Raw() (json.RawMessage, error) {
	data, err := v.Encode()
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("stored %s value is not valid JSON", v.Kind)
	}
	return json.RawMessage(data), nil
}

type (
	// KeyValueStore is one storage namespace: device-local or account-scoped remote.
	KeyValueStore interface {
		Read(ctx context.Context, key string) (Value, error)
		Write(ctx context.Context, key string, value Value) error
		Delete(ctx context.Context, key string) error
	}

	// Account is the live sign-in state of the remote backend.
	Account interface {
		IsSignedIn() bool
		SignIn(ctx context.Context, credential string) error
		User() (User, bool)
	}

	// AccountNotifier is implemented by accounts that can push sign-in changes.
	AccountNotifier interface {
		Subscribe(fn func(signedIn bool)) (cancel func())
	}

	// Site is a publicly hosted subdomain serving a directory.
	Site struct {
		Subdomain string `json:"subdomain"`
		Dir       string `json:"dir"`
	}

	// Hosting manages public sites. Subdomains are unique across owners;
	// List only returns the sites of owner.
	Hosting interface {
		List(ctx context.Context, owner string) ([]Site, error)
		Create(ctx context.Context, owner, subdomain, dir string) (Site, error)
	}

	// FileSystem is the remote account's directory API.
	FileSystem interface {
		Mkdir(ctx context.Context, path string, createMissingParents bool) error
	}

	// Diagnostics receives reports for the error-reporting collaborator.
	Diagnostics interface {
		CaptureException(err error, context map[string]any)
	}
)

// StoredValue rebuilds a Value from the kind tag and bytes a byte-oriented store persisted.
func StoredValue(kind ValueKind, data []byte) (Value, error) {
	switch kind {
	case KindParsed:
		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return Value{}, err
		}
		return ParsedValue(parsed), nil
	case KindText:
		return TextValue(string(data)), nil
	}
	return BinaryValue(data), nil
}
