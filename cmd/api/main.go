// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/statement_ledger/configs"
	"github.com/bosocmputer/statement_ledger/internal/ai"
	"github.com/bosocmputer/statement_ledger/internal/api"
	"github.com/bosocmputer/statement_ledger/internal/batch"
	"github.com/bosocmputer/statement_ledger/internal/processor"
	"github.com/bosocmputer/statement_ledger/internal/ratelimit"
	"github.com/bosocmputer/statement_ledger/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	// Step 0: Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Step 1: Batch store, MongoDB when configured
	var store batch.Store
	if cfg.MongoURI != "" {
		mongoStore, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoStore.Close(context.Background())
		store = mongoStore
	} else {
		memStore := storage.NewMemoryStore(storage.DefaultTTL)
		go memStore.RunJanitor(ctx, time.Hour)
		store = memStore
		log.Println("⚠️  MONGO_URI not set, batches are kept in memory")
	}

	// Step 2: Model waterfall and batch manager
	limiter := ratelimit.NewPerMinute(cfg.RateLimitRPM)
	text, vision, err := ai.NewDispatchers(cfg, limiter)
	if err != nil {
		log.Fatalf("Failed to create dispatchers: %v", err)
	}
	proc := processor.NewProcessor(text, vision, processor.OptionsFromConfig(cfg))
	manager := batch.NewManager(store, proc, batch.OptionsFromConfig(cfg)).
		WithProgress(func(id string, p processor.Progress) {
			log.Printf("⏳ Batch %s: chunk %d, %d/%d done (%d%%)", id, p.Current, p.Completed, p.Total, p.Percent())
		})
	go manager.RunJanitor(ctx, 10*time.Minute)

	// Step 3: Router
	router := gin.Default()
	router.Use(api.CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "statement-ledger",
			"version": "1.0.0",
		})
	})
	api.NewHandler(manager, cfg.UILanguage).RegisterRoutes(router)

	// Step 4: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   2 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
