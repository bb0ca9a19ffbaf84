package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/config"
	"exam-practice-service/internal/domain"
	"exam-practice-service/internal/infra/memory"
	"exam-practice-service/internal/infra/postgres"
	redisinfra "exam-practice-service/internal/infra/redis"
	transport "exam-practice-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// sessionStore joins the progress and history backends chosen at startup.
type sessionStore struct {
	app.ProgressStore
	app.ResultStore
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var (
		db   *bun.DB
		pool *pgxpool.Pool
	)
	if cfg.Postgres.URL != "" {
		db = postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	mem := memory.NewSessionStore()
	store := sessionStore{ProgressStore: mem, ResultStore: mem}
	var (
		loader       memory.QuestionLoader  = memory.NewStaticQuestionLoader(sampleQuestions(), string(domain.TopicMedSurg))
		streaks      app.StreakService      = memory.NewStreakService(nil)
		entitlements app.EntitlementSource  = memory.NewEntitlements()
		registry     app.ControllerRegistry = memory.NewRegistry()
	)
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
		entitlements = postgres.NewEntitlements(pool)
	}
	if db != nil {
		store.ProgressStore = postgres.NewProgressStore(db)
		store.ResultStore = postgres.NewResultStore(db)
		streaks = postgres.NewStreakService(db)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, loader, questionTTL)
		store.ProgressStore = redisinfra.NewProgressStore(redisClient, redisTTL)
		registry = redisinfra.NewRegistry(redisClient, redisTTL)
	} else {
		questions = memory.NewQuestionSource(loader, questionTTL)
	}

	service := app.NewExamService(questions, store, streaks, entitlements, registry, cfg.Policy())

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions is a small demo bank used when no Postgres is configured.
func sampleQuestions() map[domain.Category][]domain.Question {
	q := func(id string, cat domain.Category, topic, prompt string, choices [4]string, correct domain.Option, why string) domain.Question {
		return domain.Question{
			ID:       id,
			Category: cat,
			Topic:    topic,
			Prompt:   prompt,
			Choices: map[domain.Option]string{
				domain.OptionA: choices[0], domain.OptionB: choices[1],
				domain.OptionC: choices[2], domain.OptionD: choices[3],
			},
			Correct:     correct,
			Explanation: why,
		}
	}
	return map[domain.Category][]domain.Question{
		domain.CategoryNP1: {
			q("np1-1", domain.CategoryNP1, "Infection Control", "Which is the most effective way to prevent the spread of infection?",
				[4]string{"Wearing gloves", "Hand hygiene", "Using masks", "Isolating patients"}, domain.OptionB,
				"Hand hygiene breaks the chain of infection at the most common point of transmission."),
			q("np1-2", domain.CategoryNP1, "Vital Signs", "What is the normal adult resting heart rate?",
				[4]string{"40-60 bpm", "60-100 bpm", "100-120 bpm", "120-140 bpm"}, domain.OptionB,
				"A resting adult heart rate between 60 and 100 bpm is considered normal."),
		},
		domain.CategoryNP2: {
			q("np2-1", domain.CategoryNP2, "Maternal Care", "Which finding requires immediate action in a postpartum client?",
				[4]string{"Lochia rubra on day 1", "Fundus firm at the umbilicus", "Saturating a pad in 15 minutes", "Mild afterpains"}, domain.OptionC,
				"Saturating a pad within 15 minutes suggests postpartum hemorrhage."),
		},
		domain.CategoryNP3: {
			q("np3-1", domain.CategoryNP3, string(domain.TopicMedSurg), "A client with heart failure gains 2 kg overnight. What should the nurse do first?",
				[4]string{"Document the weight", "Assess lung sounds", "Encourage fluids", "Ambulate the client"}, domain.OptionB,
				"Rapid weight gain indicates fluid retention; assess for pulmonary congestion."),
			q("np3-2", domain.CategoryNP3, "Pharmacology", "Which drug reverses heparin?",
				[4]string{"Vitamin K", "Protamine sulfate", "Naloxone", "Flumazenil"}, domain.OptionB,
				"Protamine sulfate neutralizes heparin."),
		},
		domain.CategoryNP4: {
			q("np4-1", domain.CategoryNP4, "Therapeutic Communication", "Which response is therapeutic for a client who says \"I am worthless\"?",
				[4]string{"\"You have a lot to live for.\"", "\"Tell me more about feeling worthless.\"", "\"Don't say that.\"", "\"Everyone feels that way sometimes.\""}, domain.OptionB,
				"Open-ended exploration encourages the client to express feelings."),
		},
		domain.CategoryNP5: {
			q("np5-1", domain.CategoryNP5, "Delegation", "Which task can be delegated to unlicensed assistive personnel?",
				[4]string{"Initial assessment", "Patient teaching", "Measuring intake and output", "Evaluating care"}, domain.OptionC,
				"Routine measurements with standard procedures can be delegated."),
		},
	}
}
