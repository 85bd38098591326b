// Package graphdbtest provides a scripted in-memory GraphDatabase for tests.
package graphdbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/armchr/graphogm/internal/graphdb"
)

// Call is one query received by the fake.
type Call struct {
	Write  bool
	Query  string
	Params map[string]any
}

// Response is the scripted answer to one query.
type Response struct {
	Records []graphdb.Record
	Err     error
}

// Rule answers every query whose text contains Contains. Rules are checked
// before the queue, in the order they were added.
type Rule struct {
	Contains string
	Respond  func(call Call) Response
}

// FakeDB records every query and answers from rules, then from a FIFO
// queue. Queries that match nothing get an empty result.
type FakeDB struct {
	mu     sync.Mutex
	calls  []Call
	queue  []Response
	rules  []Rule
	closed bool
}

var _ graphdb.GraphDatabase = (*FakeDB)(nil)

func New() *FakeDB {
	return &FakeDB{}
}

// Push queues a successful response.
func (f *FakeDB) Push(records ...graphdb.Record) *FakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, Response{Records: records})
	return f
}

// PushErr queues a failing response.
func (f *FakeDB) PushErr(err error) *FakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, Response{Err: err})
	return f
}

// On adds a rule answering queries that contain fragment.
func (f *FakeDB) On(fragment string, respond func(call Call) Response) *FakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, Rule{Contains: fragment, Respond: respond})
	return f
}

func (f *FakeDB) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]graphdb.Record, error) {
	return f.answer(Call{Query: query, Params: params})
}

func (f *FakeDB) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]graphdb.Record, error) {
	return f.answer(Call{Write: true, Query: query, Params: params})
}

func (f *FakeDB) answer(call Call) ([]graphdb.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	var respond func(Call) Response
	for _, rule := range f.rules {
		if strings.Contains(call.Query, rule.Contains) {
			respond = rule.Respond
			break
		}
	}
	if respond == nil && len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		respond = func(Call) Response { return next }
	}
	f.mu.Unlock()

	if respond == nil {
		return nil, nil
	}
	resp := respond(call)
	return resp.Records, resp.Err
}

func (f *FakeDB) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeDB) VerifyConnectivity(ctx context.Context) error {
	return nil
}

// Calls returns every query received so far.
func (f *FakeDB) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Writes returns the write queries received so far.
func (f *FakeDB) Writes() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Write {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent call. It panics when there is none.
func (f *FakeDB) Last() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// Pending reports how many queued responses are still unused.
func (f *FakeDB) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Reset forgets recorded calls but keeps rules and queued responses.
func (f *FakeDB) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// NodeRecord builds a record holding one node under key.
func NodeRecord(key string, labels []string, props map[string]any) graphdb.Record {
	return graphdb.Record{key: graphdb.Node{ElementID: elementID(props), Labels: labels, Props: props}}
}

func elementID(props map[string]any) string {
	if id, ok := props["uuid"].(string); ok {
		return "4:test:" + id
	}
	return ""
}
