package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/controlhq/account-service/config"
	accountapp "github.com/controlhq/account-service/internal/application"
	pginfra "github.com/controlhq/account-service/internal/infrastructure/postgres"
	"github.com/controlhq/account-service/pkg/helpers"
)

// Seeds a demo account for local development. Safe to run repeatedly: an
// already-registered email is reported, not treated as a failure.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store := pginfra.NewDocumentStore(pool, cfg.StoreTimeout)
	repo := pginfra.NewAccountRepository(store)
	svc := accountapp.NewService(repo, nil, nil, nil, "", 0, cfg.LoginIDAttempts)

	res, err := svc.SignUp(ctx, accountapp.SignUpInput{
		FirstName:       "Demo",
		LastName:        "User",
		Email:           "demo@example.com",
		Password:        "password123",
		ConfirmPassword: "password123",
		Plan:            "Free Plan",
	})
	if errors.Is(err, accountapp.ErrEmailTaken) {
		fmt.Println("demo account already seeded")
		return
	}
	if err != nil {
		log.Fatalf("failed to seed account: %v", err)
	}

	fmt.Printf("seeded account: id=%s login_id=%s email=%s password=%s\n",
		res.AccountID, helpers.FormatLoginID(res.LoginID), "demo@example.com", "password123")
}
