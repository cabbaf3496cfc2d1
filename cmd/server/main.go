// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trpgtools/dice-server/internal/auth"
	"github.com/trpgtools/dice-server/pkg/config"
	"github.com/trpgtools/dice-server/pkg/events"
	"github.com/trpgtools/dice-server/pkg/random"
	"github.com/trpgtools/dice-server/pkg/room"
	"github.com/trpgtools/dice-server/pkg/session"
	"github.com/trpgtools/dice-server/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	CheckOrigin: func(r *http.Request) bool {
		path := os.Getenv("FRONTEND_PATH")
		if path == "" {
			return true
		}
		return path == r.Header.Get("Origin")
	},
}

// App encapsulates global dependencies
type application struct {
	Verifier  auth.Verifier
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Store     *store.SQLiteStore
	Sessions  *session.Service
	Rooms     *room.Registry
	Server    *http.Server

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "8080", "server port")
	flag.Parse()

	cfg := &config.Config{
		Debug: *debug,
		Port:  *port,
	}

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}
	if err := config.Load(cfg); err != nil {
		logger.Fatal("loading config error", zap.Error(err))
	}

	// Initialize event publisher
	publisher := events.NewPublisher()
	publisher.SubscribeAll(func(event events.Event) {
		logger.Debug("event",
			zap.String("type", string(event.Type)),
			zap.String("room_id", event.RoomID))
	})

	// Open the durable store and confirm tables before serving anything.
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("open store error", zap.Error(err))
	}
	if err := db.Migrate(); err != nil {
		logger.Fatal("migrate store error", zap.Error(err))
	}

	verifier := auth.NewGoogleVerifier(cfg.ClientID, cfg.JWKSURL, cfg.TokenInfoURL, logger)
	fetcher := random.NewFetcher(cfg.EntropyURL, logger)
	sessions := session.NewService(db, fetcher, publisher, logger)
	rooms := room.NewRegistry(db, publisher, logger)

	app := &application{
		Verifier:  verifier,
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Store:     db,
		Sessions:  sessions,
		Rooms:     rooms,
		StartTime: time.Now(),
	}

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Error("closing store error", zap.Error(err))
		}
	}

	app.Logger.Info("All components shut down successfully")
}
