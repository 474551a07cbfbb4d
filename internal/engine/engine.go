// Package engine bridges the native protocol and the statement executor.
// It converts decoded frames into executor calls and results back into
// response messages, tracking per-connection session state.
package engine

import (
	"fmt"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/catalog"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/internal/exec"
	"github.com/arkilian/minicql/internal/observability"
	"github.com/arkilian/minicql/internal/snapshot"
	"github.com/arkilian/minicql/internal/store"
)

// Engine executes protocol requests against a single executor shared by
// all connections.
type Engine struct {
	exec   *exec.Executor
	logger *zap.Logger
	stats  *observability.RequestStats
}

// Session carries per-connection state. Each connection owns one.
type Session struct {
	keyspace string
	version  primitive.ProtocolVersion
}

// NewSession creates the state for one connection.
func NewSession() *Session { return &Session{} }

// Keyspace returns the keyspace selected by USE, empty if none.
func (s *Session) Keyspace() string { return s.keyspace }

// Version returns the protocol version negotiated at STARTUP, zero
// before the handshake.
func (s *Session) Version() primitive.ProtocolVersion { return s.version }

// New builds an engine with a fresh catalog and store.
func New(logger *zap.Logger, node exec.NodeInfo) (*Engine, error) {
	ex, err := exec.New(catalog.New(), store.New(), logger, node)
	if err != nil {
		return nil, err
	}
	return &Engine{exec: ex, logger: logger, stats: observability.NewRequestStats()}, nil
}

// Executor exposes the underlying executor for snapshots and tooling.
func (e *Engine) Executor() *exec.Executor { return e.exec }

// Stats exposes per-opcode request statistics.
func (e *Engine) Stats() *observability.RequestStats { return e.stats }

// Snapshot serializes the current catalog and storage contents.
func (e *Engine) Snapshot() (*snapshot.Snapshot, error) {
	return snapshot.Capture(e.exec.Catalog(), e.exec.Store())
}

// supportedOptions is the body of a SUPPORTED response.
func supportedOptions() map[string][]string {
	return map[string][]string{
		"CQL_VERSION": {"3.4.4"},
		"COMPRESSION": {"snappy"},
	}
}

// Handle processes one request frame and returns the response frame,
// reusing the request's version and stream id.
func (e *Engine) Handle(f *frame.Frame, sess *Session) *frame.Frame {
	if f.Header.Version != primitive.ProtocolVersion4 && f.Header.Version != primitive.ProtocolVersion3 {
		resp := &message.ProtocolError{
			ErrorMessage: fmt.Sprintf("unsupported protocol version %s, this server speaks versions 3 and 4", f.Header.Version),
		}
		return frame.NewFrame(primitive.ProtocolVersion4, f.Header.StreamId, resp)
	}
	if sess.version == 0 {
		if _, ok := f.Body.Message.(*message.Startup); ok {
			sess.version = f.Header.Version
		}
	} else if f.Header.Version != sess.version {
		resp := &message.ProtocolError{
			ErrorMessage: fmt.Sprintf("protocol version %s does not match version %s negotiated at startup",
				f.Header.Version, sess.version),
		}
		return frame.NewFrame(sess.version, f.Header.StreamId, resp)
	}
	start := time.Now()
	resp := e.dispatch(f, sess)
	_, isError := resp.(message.Error)
	e.stats.Record(f.Body.Message.GetOpCode().String(), time.Since(start), isError)
	return frame.NewFrame(f.Header.Version, f.Header.StreamId, resp)
}

// dispatch routes one request message. A panicking handler is contained
// to this request and reported as a server error.
func (e *Engine) dispatch(f *frame.Frame, sess *Session) (resp message.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("request handler panicked",
				zap.String("opcode", f.Body.Message.GetOpCode().String()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			resp = &message.ServerError{ErrorMessage: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	switch msg := f.Body.Message.(type) {
	case *message.Options:
		resp = &message.Supported{Options: supportedOptions()}
	case *message.Startup:
		resp = &message.Ready{}
	case *message.Register:
		resp = &message.Ready{}
	case *message.Query:
		resp = e.handleQuery(msg, sess)
	case *message.Prepare:
		resp = e.handlePrepare(msg, sess)
	case *message.Execute:
		resp = e.handleExecute(msg, sess)
	case *message.Batch:
		resp = e.handleBatch(msg, sess)
	default:
		resp = &message.ProtocolError{ErrorMessage: "unsupported request opcode"}
	}
	return resp
}

func (e *Engine) handleQuery(msg *message.Query, sess *Session) message.Message {
	vals := boundValues(msg.Options)
	res, err := e.exec.Query(msg.Query, sess.keyspace, vals)
	if err != nil {
		e.logger.Debug("query failed", zap.String("query", msg.Query), zap.Error(err))
		return errorMessage(err)
	}
	if sk, ok := res.(*exec.SetKeyspaceResult); ok {
		sess.keyspace = sk.Keyspace
	}
	return resultMessage(res)
}

func (e *Engine) handlePrepare(msg *message.Prepare, sess *Session) message.Message {
	keyspace := sess.keyspace
	if msg.Keyspace != "" {
		keyspace = msg.Keyspace
	}
	prep, err := e.exec.Prepare(msg.Query, keyspace)
	if err != nil {
		e.logger.Debug("prepare failed", zap.String("query", msg.Query), zap.Error(err))
		return errorMessage(err)
	}
	return preparedMessage(prep)
}

func (e *Engine) handleExecute(msg *message.Execute, sess *Session) message.Message {
	vals := boundValues(msg.Options)
	res, err := e.exec.Execute(msg.QueryId, sess.keyspace, vals)
	if err != nil {
		if errors.GetCode(err) == errors.CodeUnprepared {
			return &message.Unprepared{ErrorMessage: err.Error(), Id: msg.QueryId}
		}
		return errorMessage(err)
	}
	if sk, ok := res.(*exec.SetKeyspaceResult); ok {
		sess.keyspace = sk.Keyspace
	}
	return resultMessage(res)
}

func (e *Engine) handleBatch(msg *message.Batch, sess *Session) message.Message {
	children := make([]exec.BatchChild, 0, len(msg.Children))
	for _, child := range msg.Children {
		bc := exec.BatchChild{Values: exec.BoundValues{Positional: params(child.Values)}}
		if child.Query != "" {
			bc.Query = child.Query
		} else if child.Id != nil {
			bc.ID = child.Id
		} else {
			return &message.ProtocolError{ErrorMessage: "malformed batch child"}
		}
		children = append(children, bc)
	}
	var defaultTS *int64
	if msg.DefaultTimestamp != nil {
		ts := *msg.DefaultTimestamp
		defaultTS = &ts
	}
	res, err := e.exec.Batch(children, sess.keyspace, defaultTS)
	if err != nil {
		return errorMessage(err)
	}
	return resultMessage(res)
}

// params converts wire values into executor parameters.
func params(values []*primitive.Value) []exec.Param {
	out := make([]exec.Param, len(values))
	for i, v := range values {
		out[i] = param(v)
	}
	return out
}

func param(v *primitive.Value) exec.Param {
	if v == nil {
		return exec.Param{Null: true}
	}
	switch v.Type {
	case primitive.ValueTypeNull:
		return exec.Param{Null: true}
	case primitive.ValueTypeUnset:
		return exec.Param{Unset: true}
	default:
		return exec.Param{Data: v.Contents}
	}
}

func boundValues(opts *message.QueryOptions) exec.BoundValues {
	if opts == nil {
		return exec.BoundValues{}
	}
	vals := exec.BoundValues{Positional: params(opts.PositionalValues)}
	if len(opts.NamedValues) > 0 {
		vals.Named = make(map[string]exec.Param, len(opts.NamedValues))
		for name, v := range opts.NamedValues {
			vals.Named[name] = param(v)
		}
	}
	return vals
}
