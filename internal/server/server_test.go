package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/compression/snappy"
	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/config"
	"github.com/arkilian/minicql/internal/engine"
	"github.com/arkilian/minicql/internal/exec"
)

func startTestServer(t *testing.T, cfg config.ListenerConfig) string {
	t.Helper()
	logger := zap.NewNop()
	eng, err := engine.New(logger, exec.NodeInfo{
		ClusterName: "test cluster",
		Address:     "127.0.0.1",
		HostID:      [16]byte{1},
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(cfg, eng, logger, NewShutdownManager(DefaultShutdownConfig()))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		srv.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	codec  frame.Codec
	reader *bufio.Reader
	stream int16
}

func dialTestClient(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, codec: frame.NewCodec(), reader: bufio.NewReader(conn)}
}

func (c *testClient) roundTrip(msg message.Message) *frame.Frame {
	c.t.Helper()
	c.stream++
	req := frame.NewFrame(primitive.ProtocolVersion4, c.stream, msg)
	if err := c.codec.EncodeFrame(req, c.conn); err != nil {
		c.t.Fatalf("encode %T: %v", msg, err)
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := c.codec.DecodeFrame(c.reader)
	if err != nil {
		c.t.Fatalf("decode response to %T: %v", msg, err)
	}
	if resp.Header.StreamId != c.stream {
		c.t.Fatalf("stream id = %d, want %d", resp.Header.StreamId, c.stream)
	}
	return resp
}

func (c *testClient) startup(options map[string]string) {
	c.t.Helper()
	resp := c.roundTrip(&message.Startup{Options: options})
	if _, ok := resp.Body.Message.(*message.Ready); !ok {
		c.t.Fatalf("startup response = %T, want READY", resp.Body.Message)
	}
}

func TestServer_HandshakeAndQuery(t *testing.T) {
	addr := startTestServer(t, config.ListenerConfig{Addr: "127.0.0.1:0"})
	c := dialTestClient(t, addr)

	resp := c.roundTrip(&message.Options{})
	supported, ok := resp.Body.Message.(*message.Supported)
	if !ok {
		t.Fatalf("OPTIONS response = %T, want SUPPORTED", resp.Body.Message)
	}
	if got := supported.Options["COMPRESSION"]; len(got) != 1 || got[0] != "snappy" {
		t.Fatalf("supported compression = %v", got)
	}

	c.startup(map[string]string{"CQL_VERSION": "3.4.4"})

	resp = c.roundTrip(&message.Query{
		Query:   "SELECT cluster_name FROM system.local",
		Options: &message.QueryOptions{},
	})
	rows, ok := resp.Body.Message.(*message.RowsResult)
	if !ok {
		t.Fatalf("query response = %T, want ROWS", resp.Body.Message)
	}
	if len(rows.Data) != 1 {
		t.Fatalf("system.local rows = %d, want 1", len(rows.Data))
	}
	if got := string(rows.Data[0][0]); got != "test cluster" {
		t.Fatalf("cluster_name = %q", got)
	}
}

func TestServer_SnappyCompression(t *testing.T) {
	addr := startTestServer(t, config.ListenerConfig{Addr: "127.0.0.1:0"})
	c := dialTestClient(t, addr)

	c.startup(map[string]string{"CQL_VERSION": "3.4.4", "COMPRESSION": "snappy"})
	c.codec = frame.NewCodecWithCompression(&snappy.Compressor{})

	resp := c.roundTrip(&message.Query{
		Query:   "CREATE KEYSPACE app WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}",
		Options: &message.QueryOptions{},
	})
	if _, ok := resp.Body.Message.(*message.SchemaChangeResult); !ok {
		t.Fatalf("response = %T, want SCHEMA_CHANGE", resp.Body.Message)
	}
}

func TestServer_RejectsUnknownCompression(t *testing.T) {
	addr := startTestServer(t, config.ListenerConfig{Addr: "127.0.0.1:0"})
	c := dialTestClient(t, addr)

	resp := c.roundTrip(&message.Startup{Options: map[string]string{"COMPRESSION": "lz4"}})
	if _, ok := resp.Body.Message.(*message.ProtocolError); !ok {
		t.Fatalf("response = %T, want PROTOCOL_ERROR", resp.Body.Message)
	}
}

func TestServer_SessionKeyspacePerConnection(t *testing.T) {
	addr := startTestServer(t, config.ListenerConfig{Addr: "127.0.0.1:0"})

	c1 := dialTestClient(t, addr)
	c1.startup(nil)
	resp := c1.roundTrip(&message.Query{
		Query:   "CREATE KEYSPACE app WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}",
		Options: &message.QueryOptions{},
	})
	if _, ok := resp.Body.Message.(*message.SchemaChangeResult); !ok {
		t.Fatalf("create keyspace response = %T", resp.Body.Message)
	}
	resp = c1.roundTrip(&message.Query{Query: "USE app", Options: &message.QueryOptions{}})
	if _, ok := resp.Body.Message.(*message.SetKeyspaceResult); !ok {
		t.Fatalf("USE response = %T, want SET_KEYSPACE", resp.Body.Message)
	}

	// A second connection has no session keyspace.
	c2 := dialTestClient(t, addr)
	c2.startup(nil)
	resp = c2.roundTrip(&message.Query{
		Query:   "CREATE TABLE kv (k int PRIMARY KEY, v text)",
		Options: &message.QueryOptions{},
	})
	if _, ok := resp.Body.Message.(*message.Invalid); !ok {
		t.Fatalf("unqualified DDL on fresh connection = %T, want INVALID", resp.Body.Message)
	}
}

func TestServer_ConnectionLimit(t *testing.T) {
	addr := startTestServer(t, config.ListenerConfig{Addr: "127.0.0.1:0", MaxConnections: 1})

	c1 := dialTestClient(t, addr)
	c1.startup(nil)

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected rejected connection to be closed")
	}
}
