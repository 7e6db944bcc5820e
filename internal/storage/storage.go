package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind identifies a persistence engine.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
	KindBolt   Kind = "bolt"
)

var (
	ErrUnknownKind = errors.New("unknown storage kind")
	// ErrEmptyKey is returned by Set on every engine; bolt cannot store it.
	ErrEmptyKey    = errors.New("storage key must not be empty")
)

// ParseKind maps a configuration value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMemory, KindSQLite, KindBolt:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q (expected memory, sqlite or bolt)", ErrUnknownKind, s)
}

func (k Kind) String() string {
	return string(k)
}

// Backend stores string values per document.
type Backend interface {
	Get(ctx context.Context, doc, key string) (string, bool, error)
	Set(ctx context.Context, doc, key, value string) error
	Close() error
}

// Open creates the backend for kind. folder may be empty for memory and sqlite.
func Open(kind Kind, folder string) (Backend, error) {
	if folder != "" {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage folder: %w", err)
		}
	}

	switch kind {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindSQLite:
		return NewSQLiteBackend(folder)
	case KindBolt:
		if folder == "" {
			return nil, fmt.Errorf("bolt storage requires a folder")
		}
		return NewBoltBackend(folder)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}
