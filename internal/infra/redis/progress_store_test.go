package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
)

func TestProgressStoreVersionedUpsert(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewProgressStore(client, time.Hour)
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "u1", domain.CategoryNP4); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	state := domain.SessionState{
		UserID:        "u1",
		CategoryID:    domain.CategoryNP4,
		QuestionIDs:   []string{"a", "b", "c"},
		CurrentIndex:  1,
		Score:         1,
		Answers:       []domain.AnswerRecord{{QuestionID: "a", Chosen: domain.OptionD, FirstCorrect: true}},
		TimeRemaining: 1200,
		Version:       3,
	}
	if err := store.UpsertSession(ctx, state); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !mr.Exists("exam:session:u1:NP4") {
		t.Fatalf("expected snapshot key")
	}
	if ttl := mr.TTL("exam:session:u1:NP4"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	stale := state
	stale.Score = 0
	if err := store.UpsertSession(ctx, stale); !errors.Is(err, domain.ErrStaleSession) {
		t.Fatalf("expected stale rejection, got %v", err)
	}

	got, err := store.GetSession(ctx, "u1", domain.CategoryNP4)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Score != 1 || got.TimeRemaining != 1200 || len(got.Answers) != 1 || !got.Answers[0].FirstCorrect {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	next := state
	next.Version = 4
	next.CurrentIndex = 2
	if err := store.UpsertSession(ctx, next); err != nil {
		t.Fatalf("newer upsert: %v", err)
	}

	if err := store.DeleteSession(ctx, "u1", domain.CategoryNP4); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("exam:session:u1:NP4") {
		t.Fatalf("expected snapshot removed")
	}
}

func TestRegistrySetsAndClearsKeys(t *testing.T) {
	mr, client := newTestRedis(t)
	registry := NewRegistry(client, time.Minute)

	c := app.NewController(app.Settings{UserID: "u1", Category: domain.CategoryNP1}, nil, nil, nil, nil)
	key := app.ControllerKey("u1", domain.CategoryNP1)

	if prev := registry.Put(key, c); prev != nil {
		t.Fatalf("expected no previous controller")
	}
	if !mr.Exists("exam:live:u1:NP1") {
		t.Fatalf("expected redis key to be set")
	}

	other := app.NewController(app.Settings{UserID: "u1", Category: domain.CategoryNP1}, nil, nil, nil, nil)
	registry.DeleteIf(key, other)
	if got, ok := registry.Get(key); !ok || got != c {
		t.Fatalf("delete with a different controller must be ignored")
	}

	registry.DeleteIf(key, c)
	if mr.Exists("exam:live:u1:NP1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestRegistryMarkerOwnershipAndRefresh(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	key := app.ControllerKey("u2", domain.CategoryNP5)
	here := NewRegistry(client, 100*time.Millisecond)
	there := NewRegistry(client, 100*time.Millisecond)

	c := app.NewController(app.Settings{UserID: "u2", Category: domain.CategoryNP5}, nil, nil, nil, nil)
	here.Put(key, c)
	if owner, err := here.Owner(ctx, key); err != nil || owner != here.Instance() {
		t.Fatalf("expected marker owned by this instance, got %q (%v)", owner, err)
	}

	mr.FastForward(60 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL("exam:live:u2:NP5") <= 60*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("marker ttl was not refreshed, got %s", mr.TTL("exam:live:u2:NP5"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	other := app.NewController(app.Settings{UserID: "u2", Category: domain.CategoryNP5}, nil, nil, nil, nil)
	there.Put(key, other)
	here.DeleteIf(key, c)
	if owner, _ := here.Owner(ctx, key); owner != there.Instance() {
		t.Fatalf("a stale instance must not clear the new owner's marker, got %q", owner)
	}
	there.DeleteIf(key, other)
	if owner, _ := there.Owner(ctx, key); owner != "" {
		t.Fatalf("expected no live marker, got %q", owner)
	}
}
