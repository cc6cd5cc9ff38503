package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/warden/internal/duckdb"
	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/ingest"
	"github.com/tinytelemetry/warden/internal/logsource"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/session"
	"github.com/tinytelemetry/warden/internal/socketrpc"
	"github.com/tinytelemetry/warden/internal/tcpserver"
)

// TestPipelineTCPToSocketClient drives records from a TCP producer through
// ingestion and DuckDB, then reads them back the way the TUI does.
func TestPipelineTCPToSocketClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := duckdb.NewStore(filepath.Join(t.TempDir(), "warden-e2e.duckdb"), 5*time.Second)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	insert := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      8,
		FlushInterval:  20 * time.Millisecond,
		FlushQueueSize: 16,
	})
	defer insert.Stop()
	processor := ingest.NewProcessor(insert, ingest.NewNormalizer(ingest.NormalizerConfig{}))

	tcp := tcpserver.NewServer("127.0.0.1:0", tcpserver.Config{})
	if err := tcp.Start(); err != nil {
		t.Fatalf("tcp Start: %v", err)
	}
	mux := NewSourceMultiplexer(ctx, []logsource.LogSource{logsource.NewTCPSource(tcp)}, 0)
	mux.Start()
	defer mux.Stop()
	go func() {
		for env := range mux.Lines() {
			processor.ProcessEnvelope(env)
		}
	}()

	// Unix socket paths are length-limited; keep it short.
	sockDir, err := os.MkdirTemp("", "warden")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(sockDir)
	sockPath := filepath.Join(sockDir, "w.sock")
	sock := socketrpc.NewServer(sockPath, store, session.NewProvider("s3cret"))
	if err := sock.Start(); err != nil {
		t.Fatalf("socket Start: %v", err)
	}
	defer sock.Stop()

	const total = 20
	conn, err := net.Dial("tcp", tcp.Addr())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < total; i++ {
		decision := "allow"
		if i%4 == 0 {
			decision = "block"
		}
		line := fmt.Sprintf(`{"id":"e2e-%02d","created_at":%q,"decision":%q,"method":"GET","url":"/item/%d","status":200,"confidence":0.9}`+"\n",
			i, base.Add(time.Duration(i)*time.Second).Format(time.RFC3339), decision, i)
		if _, err := conn.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	conn.Close()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Authenticate(ctx, model.User{ID: "ops"}, "wrong"); err == nil {
		t.Fatal("expected wrong token to be rejected")
	}
	if _, err := client.Authenticate(ctx, model.User{ID: "ops", Name: "Ops"}, "s3cret"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	coord := fetch.NewCoordinator(fetch.Config{Store: client})
	var snap *fetch.Snapshot
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap, err = coord.Load(ctx)
		if err == nil && len(snap.Records) == total {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if snap == nil || len(snap.Records) != total {
		t.Fatalf("expected %d records through the pipeline, last snapshot %+v err=%v", total, snap, err)
	}

	if got := snap.Records[0].ID; got != "e2e-19" {
		t.Fatalf("expected newest record first, got %s", got)
	}
	blocked := 0
	for _, r := range snap.Records {
		if r.Decision == model.DecisionBlocked {
			blocked++
		}
	}
	if blocked != total/4 {
		t.Fatalf("expected %d blocked records, got %d", total/4, blocked)
	}
}
