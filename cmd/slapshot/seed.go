package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/pucc/slapshot/internal/config"
	"github.com/pucc/slapshot/internal/identity"
	"github.com/pucc/slapshot/internal/team"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo team with a coach and two players",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "faceoff-demo-1"

var demoPlayers = []identity.CreateUserInput{
	{Email: "jordan@example.com", DisplayName: "Jordan Vance", Password: demoPassword},
	{Email: "riley@example.com", DisplayName: "Riley Okafor", Password: demoPassword},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := identity.NewStore(pool, cfg.Session.Lifetime)
	teams := team.NewStore(pool)

	// Check if seed has already run.
	if _, err := users.GetByEmail(ctx, "coach@example.com"); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	coach, err := users.Create(ctx, identity.CreateUserInput{
		Email:       "coach@example.com",
		DisplayName: "Coach Sam",
		Password:    demoPassword,
	})
	if err != nil {
		return fmt.Errorf("creating demo coach: %w", err)
	}

	demoTeam, err := teams.Create(ctx, coach.ID, "Demo Ice Hawks", team.Metadata{
		AgeGroup:   "U12",
		SeasonYear: "2025-2026",
		Level:      "AA",
		HomeRink:   "Civic Arena",
		City:       "Pittsfield",
	})
	if err != nil {
		return fmt.Errorf("creating demo team: %w", err)
	}

	for _, input := range demoPlayers {
		u, err := users.Create(ctx, input)
		if err != nil {
			return fmt.Errorf("creating demo player %q: %w", input.Email, err)
		}
		if _, err := teams.Join(ctx, u.ID, demoTeam.JoinCode); err != nil {
			return fmt.Errorf("joining demo player %q: %w", input.Email, err)
		}
		slog.Info("created demo player", "email", u.Email, "id", u.ID)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Team:      %s (join code %s)\n", demoTeam.Name, demoTeam.JoinCode)
	fmt.Printf("Coach:     coach@example.com\n")
	fmt.Printf("Players:   %d\n", len(demoPlayers))
	fmt.Printf("Password:  %s\n", demoPassword)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST 'http://localhost:%d/api?action=auth_login' -d '{\"email\":\"coach@example.com\",\"password\":\"%s\"}'\n", cfg.Server.Port, demoPassword)

	return nil
}
