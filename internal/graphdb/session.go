package graphdb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Session is a short-lived, single-owner scope around a driver session.
// It allows one transaction at a time.
type Session struct {
	mode    Mode
	session neo4j.SessionWithContext
	logger  *zap.Logger

	active atomic.Bool
	closed atomic.Bool
}

// Mode returns the access mode the session was opened with.
func (s *Session) Mode() Mode {
	return s.mode
}

// Run executes query inside exactly one managed transaction of the given
// mode. A write transaction in a read session, an invalid mode, or a call
// made while another transaction of this session is still running fails
// with ErrTransaction.
func (s *Session) Run(ctx context.Context, mode Mode, query string, params map[string]any) ([]Record, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: invalid access mode %d", ErrTransaction, mode)
	}
	if mode == WriteMode && s.mode == ReadMode {
		return nil, fmt.Errorf("%w: write transaction requested in a read session", ErrTransaction)
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: session is closed", ErrTransaction)
	}
	if !s.active.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: session already holds an active transaction", ErrTransaction)
	}
	defer s.active.Store(false)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		var records []Record
		for result.Next(ctx) {
			records = append(records, convertRecord(result.Record()))
		}
		if err = result.Err(); err != nil {
			return nil, err
		}
		return records, nil
	}

	var (
		result any
		err    error
	)
	if mode == ReadMode {
		result, err = s.session.ExecuteRead(ctx, work)
	} else {
		result, err = s.session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, classifyError(mode, err)
	}

	records, _ := result.([]Record)
	return records, nil
}

// Close releases the underlying driver session. It is safe to call more
// than once.
func (s *Session) Close(ctx context.Context) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err := s.session.Close(ctx); err != nil {
		s.logger.Warn("Failed to close session", zap.Error(err))
	}
}
