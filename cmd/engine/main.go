package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/courtiq/drill-engine/internal/batch"
	"github.com/courtiq/drill-engine/internal/config"
	"github.com/courtiq/drill-engine/internal/session"
	"github.com/courtiq/drill-engine/internal/sport"
	ws "github.com/courtiq/drill-engine/internal/websocket"

	_ "github.com/courtiq/drill-engine/docs" // Swagger docs
)

// @title Drill Engine API
// @version 1.0
// @description API адаптивного движка тренировочных сессий: сессии, анализ помещения, маркеры, отскоки, безопасность позы и кросс-платформенная синхронизация.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@courtiq.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	log.Printf("[INFO] Starting drill engine...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: http_port=%s batch_max_events=%d",
		cfg.HTTPPort, cfg.BatchMaxEvents)

	// Профили спорта проверяются на старте: кривой профиль - это
	// ошибка конфигурации, а не состояние времени выполнения
	if err := sport.ValidateAll(); err != nil {
		log.Fatalf("[FATAL] Invalid sport profile: %v", err)
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("[FATAL] Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	cancel()
	log.Printf("[INFO] Connected to Redis at %s", cfg.RedisAddr)
	defer redisClient.Close()

	cache := session.NewRedisStore(redisClient)

	// PostgreSQL
	repository, err := session.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to PostgreSQL: %v", err)
	}
	log.Printf("[INFO] Connected to PostgreSQL")
	defer repository.Close()

	// Батчер сбрасывает подтвержденные отскоки в PostgreSQL
	batcher := batch.NewBatcher(cfg, batch.NewRepositorySink(repository))

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	manager := session.NewManager(cache, repository, batcher, hub)
	httpHandler := session.NewHTTPHandler(manager)

	router := mux.NewRouter()
	httpHandler.RegisterRoutes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, checkCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer checkCancel()

		health := map[string]string{
			"status":   "ok",
			"redis":    "ok",
			"postgres": "ok",
		}
		if err := redisClient.Ping(checkCtx).Err(); err != nil {
			health["status"] = "degraded"
			health["redis"] = err.Error()
		}
		if err := repository.Ping(checkCtx); err != nil {
			health["status"] = "degraded"
			health["postgres"] = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		if health["status"] != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}).Methods("GET")

	router.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		received, dropped, flushed := batcher.GetStats()
		stats := map[string]interface{}{
			"batch": map[string]int64{
				"received": received,
				"dropped":  dropped,
				"flushed":  flushed,
			},
			"websocket_clients": hub.ClientCount(),
			"timestamp":         time.Now().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}).Methods("GET")

	// Swagger UI
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      enableCORS(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[INFO] HTTP server listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[FATAL] Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] Server forced to shutdown: %v", err)
	}

	batcher.Stop()

	log.Printf("[INFO] Graceful shutdown completed")
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}
