package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/mlbench/mlbench/internal/api"
	"github.com/mlbench/mlbench/internal/secrets"
	"github.com/mlbench/mlbench/reporter"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		if id := os.Getenv("DATABASE_SECRET_ID"); id != "" {
			dbURL = secrets.Scheme + id
		}
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL or DATABASE_SECRET_ID is required")
	}

	ctx := context.Background()

	repo, err := (&reporter.PostgresIO{}).Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer repo.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	srv := api.NewServer(repo, logger)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	log.Printf("mlbench records service starting on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
