package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"storyteller/internal/infra"
	"storyteller/internal/sqlinline"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		amountFlag int
	)

	flag.StringVar(&idFlag, "id", "", "user ID to credit (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to credit")
	flag.IntVar(&amountFlag, "amount", 10, "credits to add to the balance")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if amountFlag <= 0 {
		exitWithError(errors.New("-amount must be positive"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	query, key := sqlinline.QGrantCreditsByID, userID
	if userID == "" {
		query, key = sqlinline.QGrantCreditsByEmail, email
	}

	var (
		updatedID    string
		updatedEmail string
		balance      int
	)
	if err := runner.QueryRow(ctx, query, key, amountFlag).Scan(&updatedID, &updatedEmail, &balance); err != nil {
		if infra.IsNoRows(err) {
			exitWithError(fmt.Errorf("user %s not found", key))
		}
		exitWithError(fmt.Errorf("failed to credit user: %w", err))
	}

	fmt.Printf("User %s (%s) credited %d\n", updatedID, updatedEmail, amountFlag)
	fmt.Printf("credit_balance=%d\n", balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
