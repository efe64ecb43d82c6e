package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/learnex/chatengine/internal/api"
	"github.com/learnex/chatengine/internal/auth"
	"github.com/learnex/chatengine/internal/chat"
	"github.com/learnex/chatengine/internal/notify"
	"github.com/learnex/chatengine/internal/store"
	"github.com/learnex/chatengine/internal/store/memory"
	"github.com/learnex/chatengine/internal/store/postgres"
	internalWs "github.com/learnex/chatengine/internal/websocket"
)

func main() {
	// Set up logging to file
	logFile, err := os.OpenFile("server.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	env := os.Getenv("ENV")
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	auth.InitJWTKey([]byte(jwtSecret))

	// Select the document store backend. A DATABASE_URL selects the
	// Postgres store shared across server instances; without one the
	// in-process store serves local development.
	var docStore store.Store
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		pg, err := postgres.New(dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to document store: %v", err)
		}
		docStore = pg
		log.Printf("Connected to postgres document store")
	} else {
		docStore = memory.New()
		log.Printf("Using in-memory document store")
	}
	defer docStore.Close()

	muteFile := os.Getenv("MUTE_FILE")
	if muteFile == "" {
		muteFile = "mutes.json"
	}
	mutes, err := chat.NewMuteRegistry(muteFile)
	if err != nil {
		log.Fatalf("Failed to load mute registry: %v", err)
	}

	engine := chat.NewEngine(docStore, mutes, notify.NewLogGateway())

	router := gin.Default()

	allowedOriginsStr := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := strings.Split(allowedOriginsStr, ",")

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	conversationHandler := api.NewConversationHandler(engine)
	messageHandler := api.NewMessageHandler(engine)

	wsManager := internalWs.NewManager(engine)
	go wsManager.Run()

	authorized := router.Group("/api")
	authorized.Use(api.AuthMiddleware())
	{
		authorized.POST("/conversations", conversationHandler.GetOrCreate)
		authorized.GET("/conversations", conversationHandler.List)
		authorized.DELETE("/conversations/:conversationID", conversationHandler.Delete)
		authorized.PUT("/conversations/:conversationID/read", conversationHandler.MarkRead)
		authorized.PUT("/conversations/:conversationID/typing", messageHandler.SetTyping)
		authorized.GET("/conversations/:conversationID/messages", messageHandler.List)
		authorized.POST("/conversations/:conversationID/messages", messageHandler.Send)
		authorized.PUT("/messages/:messageID", messageHandler.Edit)
		authorized.DELETE("/messages/:messageID", messageHandler.Delete)
		authorized.POST("/mutes/:recipientID", conversationHandler.MuteToggle)

		// WebSocket route accepts the token in a query parameter since
		// browser WebSocket clients cannot set an Authorization header
		authorized.GET("/ws", func(c *gin.Context) {
			if _, exists := c.Get("userID"); exists {
				wsManager.HandleWebSocket(c)
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		})
	}

	router.GET("/ws", func(c *gin.Context) {
		tokenParam := c.Query("token")
		if tokenParam == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		claims, err := auth.ValidateToken(tokenParam)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("username", claims.Username)
		wsManager.HandleWebSocket(c)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}
