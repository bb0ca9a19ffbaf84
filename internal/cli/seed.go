package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"exam-practice-service/internal/config"
	"exam-practice-service/internal/infra/postgres"
	"github.com/spf13/cobra"
)

// NewSeedCmd imports a JSON question catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		file    string
		premium []string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a question catalog and premium users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file, premium)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the JSON catalog")
	cmd.Flags().StringSliceVar(&premium, "premium", nil, "user IDs to mark as premium")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string, premium []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenDB(cfg.Postgres.URL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		catalog, err := postgres.ReadCatalog(f)
		if err != nil {
			return err
		}
		if err := postgres.SeedCatalog(ctx, db, catalog); err != nil {
			return err
		}
		log.Printf("seeded %d questions and %d topics", len(catalog.Questions), len(catalog.Topics))
	}

	for _, userID := range premium {
		if err := postgres.SetPremium(ctx, db, userID, true); err != nil {
			return err
		}
		log.Printf("marked %s as premium", userID)
	}
	return nil
}
