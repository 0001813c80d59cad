package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/seolyn/vigil/internal/history"
)

func TestSink_SendAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := New(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventRestart, OccurredAt: time.Now(), Subject: "web-server", Outcome: "succeeded"},
		{Type: history.EventRestart, OccurredAt: time.Now(), Subject: "api-server", Outcome: "failed"},
		{Type: history.EventRemediation, OccurredAt: time.Now(), Subject: "memory", Outcome: "applied", Detail: "93% -> 70%"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM supervisor_events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(events) {
		t.Fatalf("expected %d rows, got %d", len(events), count)
	}

	var outcome, detail string
	if err := sink.db.QueryRowContext(ctx,
		`SELECT outcome, detail FROM supervisor_events WHERE subject = ?`, "memory").
		Scan(&outcome, &detail); err != nil {
		t.Fatalf("query remediation: %v", err)
	}
	if outcome != "applied" || detail != "93% -> 70%" {
		t.Fatalf("remediation row: %q %q", outcome, detail)
	}
}

func TestSink_DSNPrefixAccepted(t *testing.T) {
	sink, err := New("sqlite://" + filepath.Join(t.TempDir(), "pfx.db"))
	if err != nil {
		t.Fatalf("new sink with prefix: %v", err)
	}
	_ = sink.Close()
}

func TestSink_EmptyDSNRejected(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestSink_SchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		sink, err := New(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := sink.Send(context.Background(), history.Event{
			Type: history.EventRestart, OccurredAt: time.Now(),
			Subject: "x", Outcome: "succeeded",
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		_ = sink.Close()
	}
}
