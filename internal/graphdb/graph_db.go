// Package graphdb owns the connection to the graph store: driver lifecycle
// with retry and fallback, scoped sessions, and conversion of raw driver
// records into plain Go values.
package graphdb

import (
	"context"
	"errors"
)

var (
	// ErrConnection is returned when the store cannot be reached after all
	// configured attempts and the optional fallback.
	ErrConnection = errors.New("graph store connection failed")
	// ErrTransaction marks a misuse of sessions or transactions: an unknown
	// access mode, a write inside a read session, or nested acquisition.
	ErrTransaction = errors.New("transaction error")
	// ErrConstraintViolation is returned when the store itself rejects a
	// write because of a schema constraint.
	ErrConstraintViolation = errors.New("store constraint violation")
)

// GraphDatabase represents a generic graph database interface for executing Cypher queries
type GraphDatabase interface {
	// ExecuteRead executes a read-only Cypher query and returns the converted records
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Record, error)

	// ExecuteWrite executes a write Cypher query and returns the converted records
	ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]Record, error)

	// Close closes the database connection
	Close(ctx context.Context) error

	// VerifyConnectivity checks if the database connection is working
	VerifyConnectivity(ctx context.Context) error
}

// Mode is the access mode of a session or transaction.
type Mode int

const (
	ReadMode Mode = iota + 1
	WriteMode
)

func (m Mode) String() string {
	switch m {
	case ReadMode:
		return "read"
	case WriteMode:
		return "write"
	default:
		return "invalid"
	}
}

func (m Mode) valid() bool {
	return m == ReadMode || m == WriteMode
}
