package main

import (
	"certexam/internal/cache"
	"certexam/internal/config"
	"certexam/internal/repository"
	"certexam/internal/service"
	"certexam/internal/session"
	"certexam/internal/transport/rest"
	"certexam/internal/transport/ws"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.DBName)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize repositories
	examRepo := repository.NewExamRepo(db)
	attemptRepo := repository.NewAttemptRepo(db)
	enrollmentRepo := repository.NewEnrollmentRepo(db)

	// Initialize caches
	sessionCache := cache.NewSessionCache(rdb)

	// Initialize services
	authSvc := service.NewAuthService()
	engine := session.NewEngine(examRepo, attemptRepo, enrollmentRepo, sessionCache)
	reviewSvc := service.NewReviewService(attemptRepo, examRepo)

	// Inject broadcaster (wsHub implements session.Broadcaster)
	engine.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		AuthService:   authSvc,
		Engine:        engine,
		ReviewService: reviewSvc,
		WSHub:         wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  POST /v1/exams/{examId}/attempts")
		log.Println("  GET  /v1/attempts/{attemptId}")
		log.Println("  PUT  /v1/attempts/{attemptId}/answers/{questionId}")
		log.Println("  POST /v1/attempts/{attemptId}/submit")
		log.Println("  GET  /v1/attempts/{attemptId}/review")
		log.Println("  WS   /v1/ws/attempts/{attemptId}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
