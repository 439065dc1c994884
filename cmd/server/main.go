package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/solo-adventure/config"
	"github.com/user/solo-adventure/internal/api"
	"github.com/user/solo-adventure/internal/game"
	"github.com/user/solo-adventure/internal/interfaces"
	"github.com/user/solo-adventure/internal/narrator"
	"github.com/user/solo-adventure/internal/telemetry"
	"github.com/user/solo-adventure/internal/whatsapp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logger
	logger := setupLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to set up telemetry", zap.Error(err))
	}

	// Snapshot storage
	store, err := game.NewStore(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open snapshot store", zap.Error(err))
	}

	// Narrator backend
	n, err := narrator.New(cfg.Narrator)
	if err != nil {
		logger.Fatal("Failed to create narrator", zap.Error(err))
	}

	// Initialize game manager
	gameManager := game.NewGameManager(cfg, store, n)
	gameManager.SetLogger(logger)

	// Load game data
	if err := loadGameData(gameManager, cfg.Game.DataDir, logger); err != nil {
		logger.Fatal("Failed to load game data", zap.Error(err))
	}

	gameManager.StartAutosave()

	// WhatsApp transport is optional
	var clientManager *whatsapp.ClientManager
	if cfg.WhatsApp.Enabled {
		clientManager = whatsapp.NewClientManager(gameManager, cfg, logger)
	}

	server := setupHTTPServer(cfg, gameManager, clientManager, logger)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(logger)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	if clientManager != nil {
		clientManager.DisconnectAll()
	}

	// Flushes dirty sessions before the store closes
	gameManager.StopAutosave()

	if err := store.Close(); err != nil {
		logger.Error("Failed to close snapshot store", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Failed to shut down telemetry", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

func setupLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, _ := config.Build()
	return logger
}

func loadGameData(gameManager *game.GameManager, dataDir string, logger *zap.Logger) error {
	// Create data loader
	dataLoader := game.NewDataLoader(dataDir)

	// Load action triggers
	triggers, err := dataLoader.LoadTriggers()
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}

	// Load world objects
	objects, err := dataLoader.LoadObjects()
	if err != nil {
		return fmt.Errorf("failed to load objects: %w", err)
	}

	if err := gameManager.LoadData(triggers, objects); err != nil {
		return err
	}

	logger.Info("Loaded game data",
		zap.Int("triggers", len(triggers)),
		zap.Int("objects", len(objects)))
	return nil
}

func setupHTTPServer(cfg config.Config, gameManager *game.GameManager, clientManager *whatsapp.ClientManager, logger *zap.Logger) *http.Server {
	// Create router
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	api.NewHandler(gameManager, logger).Register(router)

	if clientManager != nil {
		router.Mount("/whatsapp", whatsappRoutes(cfg, clientManager, logger))
	}

	// Create HTTP server
	return &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
}

// whatsappRoutes serves device login and management
func whatsappRoutes(cfg config.Config, clientManager *whatsapp.ClientManager, logger *zap.Logger) chi.Router {
	qrManager := whatsapp.NewQRCodeManager(clientManager, cfg, logger)
	deviceStore := whatsapp.NewDeviceStore(cfg.WhatsApp.StoreDir, logger)

	router := chi.NewRouter()

	// QR code generation endpoint
	router.Post("/qr", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		code, path, err := qrManager.GenerateQRCode(req.PhoneNumber)
		if err != nil {
			logger.Error("Failed to generate QR code",
				zap.String("phone_number", req.PhoneNumber),
				zap.Error(err))
			http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"qr_code": code,
			"image":   path,
		})
	})

	// Operator messages sent from a logged-in device
	var sender interfaces.MessageSender = clientManager
	router.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PhoneNumber string `json:"phone_number"`
			Recipient   string `json:"recipient"`
			Message     string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Recipient == "" || req.Message == "" {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		id, err := sender.SendMessage(req.PhoneNumber, req.Recipient, req.Message)
		if err != nil {
			logger.Error("Failed to send message",
				zap.String("phone_number", req.PhoneNumber),
				zap.Error(err))
			http.Error(w, "Failed to send message", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message_id": id})
	})

	router.Get("/devices", func(w http.ResponseWriter, r *http.Request) {
		devices, err := deviceStore.ListDevices()
		if err != nil {
			logger.Error("Failed to list devices", zap.Error(err))
			http.Error(w, "Failed to list devices", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(devices)
	})

	router.Get("/devices/{phone_number}", func(w http.ResponseWriter, r *http.Request) {
		loggedIn, err := clientManager.IsLoggedIn(chi.URLParam(r, "phone_number"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"logged_in": loggedIn})
	})

	router.Delete("/devices/{phone_number}/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		phoneNumber := chi.URLParam(r, "phone_number")
		sessionID := chi.URLParam(r, "session_id")

		// Disconnect client if connected
		_ = clientManager.Disconnect(phoneNumber)

		if err := deviceStore.DeleteDevice(phoneNumber, sessionID); err != nil {
			logger.Error("Failed to delete device",
				zap.String("phone_number", phoneNumber),
				zap.String("session_id", sessionID),
				zap.Error(err))
			http.Error(w, "Failed to delete device", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	return router
}

func waitForShutdown(logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
}
