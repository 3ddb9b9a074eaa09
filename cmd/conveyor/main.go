package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ldelacroix/conveyor/internal/api"
	"github.com/ldelacroix/conveyor/internal/backend"
	"github.com/ldelacroix/conveyor/internal/coordinator"
	"github.com/ldelacroix/conveyor/internal/middleware"
	"github.com/ldelacroix/conveyor/internal/notify"
	"github.com/ldelacroix/conveyor/internal/repository"
	"github.com/ldelacroix/conveyor/internal/snapshot"
)

func main() {
	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		log.Fatal("BACKEND_URL is required")
	}

	client := backend.NewClient(backendURL, os.Getenv("BACKEND_TOKEN"))

	concurrency := 0
	if v := os.Getenv("UPLOAD_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid UPLOAD_CONCURRENCY %q: %v", v, err)
		}
		concurrency = n
	}

	coord, err := coordinator.New(client, client, concurrency)
	if err != nil {
		log.Fatal(err)
	}
	defer coord.Close()

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		snaps, err := snapshot.NewStore(redisAddr)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := snaps.Close(); err != nil {
				log.Printf("failed to close snapshot store: %v", err)
			}
		}()
		coord.SetSnapshotStore(snaps)
		log.Printf("Connected to Redis at %s", redisAddr)
	}

	if postgresDSN := os.Getenv("POSTGRES_DSN"); postgresDSN != "" {
		audit, err := repository.NewAuditRepository(postgresDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := audit.Close(); err != nil {
				log.Printf("failed to close audit repository: %v", err)
			}
		}()
		coord.SetAuditor(audit)
		log.Println("Audit trail enabled")
	}

	if apiKey := os.Getenv("SENDGRID_API_KEY"); apiKey != "" {
		notifyAddress := os.Getenv("NOTIFY_ADDRESS")
		if notifyAddress == "" {
			log.Fatal("NOTIFY_ADDRESS is required when SENDGRID_API_KEY is set")
		}
		coord.SetNotifier(notify.NewEmailNotifier(
			apiKey,
			os.Getenv("FROM_NAME"),
			os.Getenv("FROM_ADDRESS"),
			notifyAddress,
		))
		log.Println("Failure notifications enabled")
	}

	coord.OnInvalidate(func() {
		log.Println("Some jobs finished, resource lists should be refetched")
	})

	apiHandler := api.NewAPI(coord, client)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: middleware.MetricsMiddleware(apiHandler),
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		log.Printf("Using backend at %s", backendURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	if err := server.Close(); err != nil {
		log.Printf("failed to close server: %v", err)
	}
}
