package graphdb

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// fakeDriver satisfies neo4j.DriverWithContext for the methods the Manager
// uses. Any other method panics through the nil embedded interface.
type fakeDriver struct {
	neo4j.DriverWithContext

	verifyErr error
	closed    int
	sessions  []*fakeSession
	newSess   func() *fakeSession
}

func (d *fakeDriver) VerifyConnectivity(ctx context.Context) error {
	return d.verifyErr
}

func (d *fakeDriver) Close(ctx context.Context) error {
	d.closed++
	return nil
}

func (d *fakeDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) neo4j.SessionWithContext {
	s := &fakeSession{accessMode: cfg.AccessMode}
	if d.newSess != nil {
		s = d.newSess()
		s.accessMode = cfg.AccessMode
	}
	d.sessions = append(d.sessions, s)
	return s
}

type fakeSession struct {
	neo4j.SessionWithContext

	accessMode neo4j.AccessMode
	tx         *fakeTx
	err        error
	during     func()
	reads      int
	writes     int
	closed     int
}

func (s *fakeSession) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork, _ ...func(*neo4j.TransactionConfig)) (any, error) {
	s.reads++
	return s.execute(work)
}

func (s *fakeSession) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, _ ...func(*neo4j.TransactionConfig)) (any, error) {
	s.writes++
	return s.execute(work)
}

func (s *fakeSession) execute(work neo4j.ManagedTransactionWork) (any, error) {
	if s.during != nil {
		s.during()
	}
	if s.err != nil {
		return nil, s.err
	}
	tx := s.tx
	if tx == nil {
		tx = &fakeTx{}
	}
	return work(tx)
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closed++
	return nil
}

type fakeTx struct {
	neo4j.ManagedTransaction

	records []*neo4j.Record
	query   string
	params  map[string]any
}

func (tx *fakeTx) Run(ctx context.Context, query string, params map[string]any) (neo4j.ResultWithContext, error) {
	tx.query = query
	tx.params = params
	return &fakeResult{records: tx.records, pos: -1}, nil
}

type fakeResult struct {
	neo4j.ResultWithContext

	records []*neo4j.Record
	pos     int
}

func (r *fakeResult) Next(ctx context.Context) bool {
	r.pos++
	return r.pos < len(r.records)
}

func (r *fakeResult) Record() *neo4j.Record {
	return r.records[r.pos]
}

func (r *fakeResult) Err() error {
	return nil
}
