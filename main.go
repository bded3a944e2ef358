package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitFeudAPI/handlers"
	"fitFeudAPI/internal/events"
	"fitFeudAPI/middleware"
	"fitFeudAPI/services"
)

var (
	dbPool             *pgxpool.Pool
	bus                *events.Bus
	activityService    *services.ActivityService
	groupService       *services.GroupService
	duelService        *services.DuelService
	competitionService *services.CompetitionService
	matchmakingService *services.MatchmakingService
	leaderboardService *services.LeaderboardService
	sweeper            *services.Sweeper
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	bus = events.NewBus()
	activityService = services.NewActivityService(dbPool)
	groupService = services.NewGroupService(dbPool)
	duelService = services.NewDuelService(dbPool, activityService, bus)
	competitionService = services.NewCompetitionService(dbPool, groupService, bus)
	matchmakingService = services.NewMatchmakingService(dbPool, groupService, competitionService, bus)
	leaderboardService = services.NewLeaderboardService(dbPool)
	sweeper = services.NewSweeper(duelService, competitionService, matchmakingService)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	duelHandler := handlers.NewDuelHandler(duelService)
	competitionHandler := handlers.NewCompetitionHandler(competitionService)
	matchmakingHandler := handlers.NewMatchmakingHandler(matchmakingService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)
	activityHandler := handlers.NewActivityHandler(activityService, duelService, competitionService)

	// Log engine events; downstream consumers subscribe the same way.
	go func() {
		for evt := range bus.Subscribe(64) {
			log.Printf("[Event] %s %v", evt.Type, evt.Data)
		}
	}()

	sched, err := sweeper.Start()
	if err != nil {
		log.Fatal("Failed to start sweeper:", err)
	}

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "fitFeud-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/points/formula", leaderboardHandler.GetPointsFormula).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/duels", duelHandler.CreateDuel).Methods("POST")
	protected.HandleFunc("/duels", duelHandler.GetDuels).Methods("GET")
	protected.HandleFunc("/duels/{duelID}", duelHandler.GetDuel).Methods("GET")
	protected.HandleFunc("/duels/{duelID}/accept", duelHandler.AcceptDuel).Methods("POST")
	protected.HandleFunc("/duels/{duelID}/decline", duelHandler.DeclineDuel).Methods("POST")
	protected.HandleFunc("/duels/{duelID}/cancel", duelHandler.CancelDuel).Methods("POST")

	protected.HandleFunc("/competitions", competitionHandler.CreateCompetition).Methods("POST")
	protected.HandleFunc("/competitions", competitionHandler.GetCompetitions).Methods("GET")
	protected.HandleFunc("/competitions/{competitionID}", competitionHandler.GetCompetition).Methods("GET")
	protected.HandleFunc("/competitions/{competitionID}/accept", competitionHandler.AcceptCompetition).Methods("POST")
	protected.HandleFunc("/competitions/{competitionID}/cancel", competitionHandler.CancelCompetition).Methods("POST")

	protected.HandleFunc("/matchmaking/queue", matchmakingHandler.JoinQueue).Methods("POST")
	protected.HandleFunc("/matchmaking/queue", matchmakingHandler.LeaveQueue).Methods("DELETE")
	protected.HandleFunc("/matchmaking/queue", matchmakingHandler.GetQueueStatus).Methods("GET")

	protected.HandleFunc("/leaderboard", leaderboardHandler.GetLeaderboard).Methods("GET")

	protected.HandleFunc("/activity/workout", activityHandler.LogWorkout).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := sched.Shutdown(); err != nil {
		log.Printf("Sweeper shutdown error: %v", err)
	}
	bus.Close()

	log.Println("Server shutdown complete")
}
