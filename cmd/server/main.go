package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/party-jam-system/internal/auth"
	"github.com/party-jam-system/internal/queue"
	"github.com/party-jam-system/internal/room"
	"github.com/party-jam-system/internal/spotify"
	"github.com/party-jam-system/internal/token"
	"github.com/party-jam-system/internal/ws"
	"github.com/party-jam-system/pkg/database"
	"github.com/party-jam-system/pkg/events"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found")
	}

	// Set Gin mode based on environment
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize MySQL database
	db, err := database.NewMySQLDB(
		os.Getenv("MYSQL_HOST"),
		os.Getenv("MYSQL_PORT"),
		os.Getenv("MYSQL_USER"),
		os.Getenv("MYSQL_PASSWORD"),
		os.Getenv("MYSQL_DATABASE"),
	)
	if err != nil {
		log.Fatal("failed to connect to database", "err", err)
	}

	// Redis room cache is optional; the service falls back to the
	// database when no client is configured.
	var redisClient *goredis.Client
	if host := os.Getenv("REDIS_HOST"); host != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     host + ":" + os.Getenv("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		})
	}

	// Kafka activity stream is optional as well.
	var kafkaClient *events.KafkaClient
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaClient = events.NewKafkaClient(strings.Split(brokers, ","), "party-jam-activity")
		defer kafkaClient.Close()
	}

	// Initialize services
	spotifyClient := spotify.NewClient(
		os.Getenv("SPOTIFY_CLIENT_ID"),
		os.Getenv("SPOTIFY_CLIENT_SECRET"),
		os.Getenv("SPOTIFY_REDIRECT_URI"),
	)

	hub := ws.NewHub()
	engine := queue.NewEngine(db)
	refresher := token.NewRefresher(spotifyClient, db)
	roomService := room.NewService(db, engine, refresher, spotifyClient, hub, redisClient, kafkaClient)

	// Initialize handlers
	authHandler := auth.NewHandler(spotifyClient, db)
	roomHandler := room.NewHandler(roomService)
	wsHandler := ws.NewHandler(hub)

	// Initialize Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(envOr("CORS_ORIGINS", "http://localhost:3000"), ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Redirect legacy Spotify OAuth callback to the API route
	router.GET("/auth/callback", func(c *gin.Context) {
		dest := "/api/v1/auth/callback"
		if raw := c.Request.URL.RawQuery; raw != "" {
			dest += "?" + raw
		}
		c.Redirect(http.StatusTemporaryRedirect, dest)
	})

	authHandler.RegisterRoutes(v1)
	roomHandler.RegisterRoutes(v1, auth.HostMiddleware())
	v1.GET("/ws/:code", wsHandler.HandleWebSocket)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info("server starting", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("failed to start server", "err", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
