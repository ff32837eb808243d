package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/libraryd/internal/api"
	"github.com/rpattn/libraryd/internal/circulation"
	"github.com/rpattn/libraryd/internal/config"
	"github.com/rpattn/libraryd/internal/db"
	"github.com/rpattn/libraryd/internal/export"
	"github.com/rpattn/libraryd/internal/ingestion"
	"github.com/rpattn/libraryd/internal/middleware"
	"github.com/rpattn/libraryd/internal/repository"
	"github.com/rpattn/libraryd/migrations"

	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup database connection
	dbConfig, err := config.LoadDBConfig(".")
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	conn, err := db.NewConnection(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations. A failing script means the schema is incomplete;
	// refusing to serve is the only safe option.
	if err := db.ApplyMigrations(ctx, conn, migrations.Files); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories and services
	bookRepo := repository.NewBookRepository(conn.Pool)
	historyRepo := repository.NewHistoryRepository(conn.Pool)
	circulationSvc := circulation.NewService(conn, bookRepo, historyRepo)
	exportSvc := export.NewService(bookRepo)
	importSvc := ingestion.NewService(bookRepo)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	apiHandler := api.NewHTTPHandler(bookRepo, historyRepo, circulationSvc)

	mux := http.NewServeMux()
	mux.Handle("/api/books", apiHandler)
	mux.Handle("/api/books/", apiHandler)
	mux.Handle("/api/export/books", export.NewHTTPHandler(exportSvc))
	mux.Handle("/api/import/books", ingestion.NewHTTPHandler(importSvc))

	handler := corsHandler.Handler(middleware.LoggingMiddleware(mux))

	serverConfig := config.LoadServerConfig(".")

	// Create HTTP server
	server := &http.Server{
		Addr:         serverConfig.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting library server on %s", serverConfig.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
