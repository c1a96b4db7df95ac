package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Minute})

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Second

	for i := 0; i < 3; i++ {
		if err := repo.Record(ctx, "login_ip:10.0.0.1", base.Add(time.Duration(i)*10*time.Second)); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	w, err := repo.Window(ctx, "login_ip:10.0.0.1", window, base.Add(35*time.Second))
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if w.Count != 2 {
		t.Fatalf("expected 2 attempts inside the window, got %d", w.Count)
	}
	if !w.Oldest.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("unexpected oldest attempt %v", w.Oldest)
	}

	if n := client.ZCard(ctx, "rl:login_ip:10.0.0.1").Val(); n != 2 {
		t.Fatalf("expected expired attempt to be trimmed, %d members left", n)
	}
}

func TestRateLimitRepository_CountsSimultaneousAttempts(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{TTL: time.Minute})

	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := repo.Record(ctx, "k", at); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	w, err := repo.Window(ctx, "k", time.Minute, at)
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if w.Count != 4 {
		t.Fatalf("expected 4 attempts, got %d", w.Count)
	}
	if ttl := server.TTL("k"); ttl != time.Minute {
		t.Fatalf("expected key ttl of one minute, got %v", ttl)
	}
}

func TestRateLimitRepository_EmptyWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	w, err := repo.Window(context.Background(), "unknown", time.Minute, time.Now())
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if w.Count != 0 || !w.Oldest.IsZero() {
		t.Fatalf("expected empty window, got %+v", w)
	}
}

func TestRateLimitRepository_RejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.Window(context.Background(), "id", 0, time.Now()); err == nil {
		t.Fatal("expected error for zero window")
	}
}
