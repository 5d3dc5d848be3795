package registry

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()
	r, err := NewSQLite(filepath.Join(t.TempDir(), "channels.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_AddAndList(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"somestreamer", "another"} {
		if err := r.AddChannel(ctx, name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	got, err := r.ListChannels(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"somestreamer", "another"}) {
		t.Fatalf("channels = %v", got)
	}
}

func TestRegistry_AddIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.AddChannel(ctx, "samechannel"); err != nil {
			t.Fatalf("add attempt %d: %v", i, err)
		}
	}

	got, err := r.ListChannels(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 channel, got %v", got)
	}
}

func TestRegistry_NormalizesNames(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.AddChannel(ctx, "  #SomeStreamer "); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ := r.ListChannels(ctx)
	if len(got) != 1 || got[0] != "somestreamer" {
		t.Fatalf("channels = %v, want normalized lowercase name", got)
	}

	if err := r.AddChannel(ctx, "   "); err == nil {
		t.Fatal("empty name must be rejected")
	}
}

func TestRegistry_EmptyList(t *testing.T) {
	r := newTestRegistry(t)

	got, err := r.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no channels, got %v", got)
	}
}
