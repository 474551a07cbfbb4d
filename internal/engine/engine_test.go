package engine

import (
	"testing"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/codec"
	"github.com/arkilian/minicql/internal/exec"
	"github.com/arkilian/minicql/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(zap.NewNop(), exec.NodeInfo{
		ClusterName: "test cluster",
		Address:     "127.0.0.1",
		HostID:      [16]byte{7},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func request(msg message.Message) *frame.Frame {
	return frame.NewFrame(primitive.ProtocolVersion4, 1, msg)
}

func handle(t *testing.T, e *Engine, sess *Session, msg message.Message) message.Message {
	t.Helper()
	resp := e.Handle(request(msg), sess)
	if resp.Header.StreamId != 1 {
		t.Fatalf("stream id not preserved: %d", resp.Header.StreamId)
	}
	return resp.Body.Message
}

func query(t *testing.T, e *Engine, sess *Session, cql string) message.Message {
	t.Helper()
	resp := handle(t, e, sess, &message.Query{Query: cql, Options: &message.QueryOptions{}})
	if em, ok := resp.(message.Error); ok {
		t.Fatalf("query %q: %v", cql, em.GetErrorMessage())
	}
	return resp
}

func TestEngine_Handshake(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{}

	resp := handle(t, e, sess, &message.Options{})
	sup, ok := resp.(*message.Supported)
	if !ok {
		t.Fatalf("expected SUPPORTED, got %T", resp)
	}
	if comp := sup.Options["COMPRESSION"]; len(comp) != 1 || comp[0] != "snappy" {
		t.Fatalf("unexpected compression options %v", sup.Options)
	}

	resp = handle(t, e, sess, &message.Startup{})
	if _, ok := resp.(*message.Ready); !ok {
		t.Fatalf("expected READY, got %T", resp)
	}
	resp = handle(t, e, sess, &message.Register{})
	if _, ok := resp.(*message.Ready); !ok {
		t.Fatalf("expected READY after REGISTER, got %T", resp)
	}
	if got := e.Stats().Total(); got != 3 {
		t.Fatalf("recorded requests = %d, want 3", got)
	}
}

func TestEngine_SessionPinsVersion(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{}

	resp := e.Handle(frame.NewFrame(primitive.ProtocolVersion3, 1, &message.Startup{}), sess)
	if _, ok := resp.Body.Message.(*message.Ready); !ok {
		t.Fatalf("expected READY, got %T", resp.Body.Message)
	}
	if sess.Version() != primitive.ProtocolVersion3 {
		t.Fatalf("session version = %s, want 3", sess.Version())
	}

	// A frame at a different supported version after STARTUP is refused.
	q := &message.Query{Query: "SELECT * FROM system.local", Options: &message.QueryOptions{}}
	resp = e.Handle(frame.NewFrame(primitive.ProtocolVersion4, 2, q), sess)
	if _, ok := resp.Body.Message.(*message.ProtocolError); !ok {
		t.Fatalf("expected ProtocolError, got %T", resp.Body.Message)
	}
	if resp.Header.Version != primitive.ProtocolVersion3 {
		t.Fatalf("error frame version = %s, want negotiated 3", resp.Header.Version)
	}

	resp = e.Handle(frame.NewFrame(primitive.ProtocolVersion3, 3, q), sess)
	if _, ok := resp.Body.Message.(*message.RowsResult); !ok {
		t.Fatalf("expected rows at negotiated version, got %T", resp.Body.Message)
	}
}

func TestEngine_QueryLifecycle(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{}

	resp := query(t, e, sess, "CREATE KEYSPACE app")
	if sc, ok := resp.(*message.SchemaChangeResult); !ok || sc.ChangeType != primitive.SchemaChangeTypeCreated {
		t.Fatalf("unexpected schema change %#v", resp)
	}

	resp = query(t, e, sess, "USE app")
	if sk, ok := resp.(*message.SetKeyspaceResult); !ok || sk.Keyspace != "app" {
		t.Fatalf("unexpected USE result %#v", resp)
	}
	if sess.Keyspace() != "app" {
		t.Fatalf("session keyspace not updated: %q", sess.Keyspace())
	}

	query(t, e, sess, "CREATE TABLE kv (k text PRIMARY KEY, v int)")
	query(t, e, sess, "INSERT INTO kv (k, v) VALUES ('a', 42)")

	resp = query(t, e, sess, "SELECT v FROM kv WHERE k = 'a'")
	rows, ok := resp.(*message.RowsResult)
	if !ok {
		t.Fatalf("expected rows, got %T", resp)
	}
	if rows.Metadata.ColumnCount != 1 || rows.Metadata.Columns[0].Name != "v" {
		t.Fatalf("unexpected metadata %#v", rows.Metadata)
	}
	if len(rows.Data) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows.Data))
	}
	v, err := codec.Decode(rows.Data[0][0], types.Scalar(types.KindInt))
	if err != nil || v.Int != 42 {
		t.Fatalf("unexpected cell %v %v", v, err)
	}
}

func TestEngine_SyntaxError(t *testing.T) {
	e := newTestEngine(t)
	resp := handle(t, e, &Session{}, &message.Query{Query: "SELEC * FROM x", Options: &message.QueryOptions{}})
	if _, ok := resp.(*message.SyntaxError); !ok {
		t.Fatalf("expected syntax error, got %T", resp)
	}
}

func TestEngine_PrepareExecute(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{}
	query(t, e, sess, "CREATE KEYSPACE app")
	query(t, e, sess, "USE app")
	query(t, e, sess, "CREATE TABLE kv (k text PRIMARY KEY, v int)")

	resp := handle(t, e, sess, &message.Prepare{Query: "INSERT INTO kv (k, v) VALUES (?, ?)"})
	prep, ok := resp.(*message.PreparedResult)
	if !ok {
		t.Fatalf("expected prepared result, got %T", resp)
	}
	if len(prep.VariablesMetadata.Columns) != 2 || prep.VariablesMetadata.Columns[0].Name != "k" {
		t.Fatalf("unexpected variables %#v", prep.VariablesMetadata)
	}
	if len(prep.VariablesMetadata.PkIndices) != 1 || prep.VariablesMetadata.PkIndices[0] != 0 {
		t.Fatalf("unexpected pk indices %v", prep.VariablesMetadata.PkIndices)
	}

	kData, _ := codec.Encode(types.NewText("x"), types.Scalar(types.KindText))
	vData, _ := codec.Encode(types.NewInt(9), types.Scalar(types.KindInt))
	resp = handle(t, e, sess, &message.Execute{QueryId: prep.PreparedQueryId, Options: &message.QueryOptions{
		PositionalValues: []*primitive.Value{
			{Type: primitive.ValueTypeRegular, Contents: kData},
			{Type: primitive.ValueTypeRegular, Contents: vData},
		},
	}})
	if _, ok := resp.(*message.VoidResult); !ok {
		t.Fatalf("expected void result, got %T", resp)
	}

	rows := query(t, e, sess, "SELECT v FROM kv WHERE k = 'x'").(*message.RowsResult)
	if len(rows.Data) != 1 {
		t.Fatalf("bound insert missing")
	}

	resp = handle(t, e, sess, &message.Execute{QueryId: []byte("missing"), Options: &message.QueryOptions{}})
	unp, ok := resp.(*message.Unprepared)
	if !ok {
		t.Fatalf("expected UNPREPARED, got %T", resp)
	}
	if string(unp.Id) != "missing" {
		t.Fatalf("unprepared id not echoed")
	}
}

func TestEngine_Batch(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{}
	query(t, e, sess, "CREATE KEYSPACE app")
	query(t, e, sess, "USE app")
	query(t, e, sess, "CREATE TABLE kv (k text PRIMARY KEY, v int)")

	resp := handle(t, e, sess, &message.Batch{
		Type: primitive.BatchTypeUnlogged,
		Children: []*message.BatchChild{
			{Query: "INSERT INTO kv (k, v) VALUES ('a', 1)"},
			{Query: "INSERT INTO kv (k, v) VALUES ('b', 2)"},
		},
	})
	if _, ok := resp.(*message.VoidResult); !ok {
		t.Fatalf("expected void result, got %T", resp)
	}
	rows := query(t, e, sess, "SELECT k FROM kv WHERE k IN ('a', 'b')").(*message.RowsResult)
	if len(rows.Data) != 2 {
		t.Fatalf("batch writes missing: %d", len(rows.Data))
	}
}
