package rest

import (
	"certexam/internal/service"
	"certexam/internal/session"
	"certexam/internal/transport/rest/handler"
	"certexam/internal/transport/rest/middleware"
	"certexam/internal/transport/ws"
	"net/http"
	"os"

	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService   *service.AuthService
	Engine        *session.Engine
	ReviewService *service.ReviewService
	WSHub         *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	attemptHandler := handler.NewAttemptHandler(c.Engine)
	reviewHandler := handler.NewReviewHandler(c.ReviewService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Engine)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/attempts/{attemptId}", wsHandler.AttemptWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Candidate routes (require candidate auth)
	candidateRoutes := v1.NewRoute().Subrouter()
	candidateRoutes.Use(authMW.RequireCandidate)

	candidateRoutes.HandleFunc("/exams/{examId}/attempts", attemptHandler.Start).Methods("POST", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}", attemptHandler.Get).Methods("GET", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/answers/{questionId}", attemptHandler.SelectAnswers).Methods("PUT", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/navigate", attemptHandler.Navigate).Methods("POST", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/flags/{index}", attemptHandler.ToggleFlag).Methods("POST", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/pause", attemptHandler.Pause).Methods("POST", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/resume", attemptHandler.Resume).Methods("POST", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/submit", attemptHandler.Submit).Methods("POST", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/result", attemptHandler.Result).Methods("GET", "OPTIONS")
	candidateRoutes.HandleFunc("/attempts/{attemptId}/review", reviewHandler.Review).Methods("GET", "OPTIONS")
	candidateRoutes.HandleFunc("/users/me/attempts", reviewHandler.History).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
