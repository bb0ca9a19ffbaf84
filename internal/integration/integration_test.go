package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
	"exam-practice-service/internal/infra/postgres"
	infraredis "exam-practice-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type sessionStore struct {
	app.ProgressStore
	app.ResultStore
}

func TestExamEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.OpenDB(pgURL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.SeedCatalog(ctx, db, sampleCatalog(20)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	progress := infraredis.NewProgressStore(redisClient, time.Hour)
	results := postgres.NewResultStore(db)
	service := app.NewExamService(
		infraredis.NewQuestionCache(redisClient, postgres.NewQuestionLoader(pool), 5*time.Minute),
		sessionStore{ProgressStore: progress, ResultStore: results},
		postgres.NewStreakService(db),
		postgres.NewEntitlements(pool),
		infraredis.NewRegistry(redisClient, time.Hour),
		app.Policy{
			Base:         app.TierPolicy{Limit: 20, Budget: 30 * time.Minute},
			Premium:      app.TierPolicy{Limit: 100, Budget: 150 * time.Minute},
			Milestones:   []int{3},
			HistoryLimit: 5,
		},
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c, err := service.Start(runCtx, "nurse-1", "NP3", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if total := c.View().Total; total != 20 {
		t.Fatalf("expected 20 questions, got %d", total)
	}

	for i := 0; i < 20; i++ {
		option := domain.OptionA
		if i >= 15 {
			option = domain.OptionD
		}
		if err := c.SelectOption(ctx, option); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if _, err := c.CommitAnswer(ctx); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		if err := c.Next(ctx); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if err := c.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	history, err := service.History(ctx, "nurse-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history.Results) != 1 || history.Results[0].Score != 15 || history.Results[0].TotalItems != 20 {
		t.Fatalf("unexpected history %+v", history.Results)
	}
	if !history.Results[0].Passed || history.TotalScore != 15 {
		t.Fatalf("expected a 75%% pass with total 15, got %+v", history)
	}
	if _, err := progress.GetSession(ctx, "nurse-1", domain.CategoryNP3); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("progress should be deleted, got %v", err)
	}
	if v := c.View(); v.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", v.Streak)
	}
}

func TestPostgresProgressStoreVersions(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.OpenDB(pgURL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := postgres.NewProgressStore(db)

	state := domain.SessionState{UserID: "u1", CategoryID: domain.CategoryNP1, Score: 2, Version: 2, UpdatedAt: time.Now()}
	if err := store.UpsertSession(ctx, state); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	state.Score = 1
	if err := store.UpsertSession(ctx, state); !errors.Is(err, domain.ErrStaleSession) {
		t.Fatalf("expected stale rejection, got %v", err)
	}
	got, err := store.GetSession(ctx, "u1", domain.CategoryNP1)
	if err != nil || got.Score != 2 {
		t.Fatalf("expected stored score 2, got %+v (%v)", got, err)
	}
	if err := store.DeleteSession(ctx, "u1", domain.CategoryNP1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := postgres.SetPremium(ctx, db, "u1", true); err != nil {
		t.Fatalf("set premium: %v", err)
	}
	streaks := postgres.NewStreakService(db)
	if n, changed, err := streaks.RecordActivity(ctx, "u1"); err != nil || n != 1 || !changed {
		t.Fatalf("expected a new streak of 1, got %d %v (%v)", n, changed, err)
	}
	if n, changed, _ := streaks.RecordActivity(ctx, "u1"); n != 1 || changed {
		t.Fatalf("same-day activity must keep the streak unchanged, got %d %v", n, changed)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// sampleCatalog builds n NP3 questions whose answer is A.
func sampleCatalog(n int) postgres.Catalog {
	c := postgres.Catalog{Topics: []string{"Pharmacology", string(domain.TopicMedSurg)}}
	for i := 0; i < n; i++ {
		topic := "Pharmacology"
		if i%2 == 0 {
			topic = string(domain.TopicMedSurg)
		}
		c.Questions = append(c.Questions, domain.Question{
			ID:       fmt.Sprintf("np3-%02d", i),
			Category: domain.CategoryNP3,
			Topic:    topic,
			Prompt:   fmt.Sprintf("Question %d", i),
			Choices: map[domain.Option]string{
				domain.OptionA: "right", domain.OptionB: "wrong", domain.OptionC: "wrong", domain.OptionD: "wrong",
			},
			Correct: domain.OptionA,
		})
	}
	// a malformed row must be skipped by the loader
	c.Questions = append(c.Questions, domain.Question{
		ID: "np3-bad", Category: domain.CategoryNP3, Prompt: "broken",
		Choices: map[domain.Option]string{domain.OptionA: "a", domain.OptionB: "b", domain.OptionC: "c", domain.OptionD: ""},
		Correct: domain.OptionA,
	})
	return c
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
