package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Narrator backends
const (
	BackendOllama     = "ollama"
	BackendOpenRouter = "openrouter"
)

// Storage drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite3"
)

// Config holds all configuration for the application
type Config struct {
	// Language model narrator configuration
	Narrator NarratorConfig `json:"narrator"`

	// Game rules configuration
	Game GameConfig `json:"game"`

	// Snapshot storage configuration
	Storage StorageConfig `json:"storage"`

	// WhatsApp configuration
	WhatsApp WhatsAppConfig `json:"whatsapp"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Tracing configuration
	Telemetry TelemetryConfig `json:"telemetry"`
}

// NarratorConfig holds narrator backend configuration
type NarratorConfig struct {
	// Backend (ollama, openrouter)
	Backend string `json:"backend" env:"NARRATOR_BACKEND"`

	// Base URL of the local Ollama server
	OllamaURL string `json:"ollama_url" env:"OLLAMA_URL"`

	// Base URL of the OpenAI-compatible hosted API
	OpenRouterURL string `json:"openrouter_url" env:"OPENROUTER_URL"`

	// API key for the hosted backend
	APIKey string `json:"api_key" env:"NARRATOR_API_KEY"`

	// Model name
	Model string `json:"model" env:"NARRATOR_MODEL"`

	// Per-call timeout in seconds
	TimeoutSeconds int `json:"timeout_seconds" env:"NARRATOR_TIMEOUT_SECONDS"`

	// Number of transcript turns sent with each call
	WindowSize int `json:"window_size" env:"NARRATOR_WINDOW_SIZE"`
}

// Timeout returns the per-call timeout as a duration
func (n NarratorConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// GameConfig holds game specific configuration
type GameConfig struct {
	// Setting used when a new session does not name one
	DefaultSetting string `json:"default_setting" env:"GAME_DEFAULT_SETTING"`

	// Items every new character starts with
	StartingItems []string `json:"starting_items" env:"GAME_STARTING_ITEMS"`

	// Largest XP change a single narrator tag may apply
	MaxXPPerTag int `json:"max_xp_per_tag" env:"GAME_MAX_XP_PER_TAG"`

	// Largest damage a single narrator tag may apply
	MaxDamagePerTag int `json:"max_damage_per_tag" env:"GAME_MAX_DAMAGE_PER_TAG"`

	// Directory with optional triggers.json and objects.json overrides
	DataDir string `json:"data_dir" env:"GAME_DATA_DIR"`

	// Minutes between autosaves of active sessions (0 disables)
	AutosaveInterval int `json:"autosave_interval" env:"GAME_AUTOSAVE_INTERVAL"`

	// Dice seed (0 seeds from the clock)
	DiceSeed int64 `json:"dice_seed" env:"GAME_DICE_SEED"`
}

// StorageConfig holds snapshot storage configuration
type StorageConfig struct {
	// Driver (file, sqlite3)
	Driver string `json:"driver" env:"STORAGE_DRIVER"`

	// Directory for file snapshots
	Dir string `json:"dir" env:"STORAGE_DIR"`

	// Database connection string for sqlite3
	DSN string `json:"dsn" env:"STORAGE_DSN"`
}

// WhatsAppConfig holds WhatsApp specific configuration
type WhatsAppConfig struct {
	// Whether the WhatsApp transport starts with the server
	Enabled bool `json:"enabled" env:"WHATSAPP_ENABLED"`

	// Path to store WhatsApp device data
	StoreDir string `json:"store_dir" env:"WHATSAPP_STORE_DIR"`

	// Client device name
	ClientName string `json:"client_name" env:"WHATSAPP_CLIENT_NAME"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" env:"PORT"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	// Request timeout in seconds
	RequestTimeout int `json:"request_timeout" env:"SERVER_REQUEST_TIMEOUT"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	// OTLP HTTP endpoint; tracing is disabled when empty
	Endpoint string `json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Service name reported with spans
	ServiceName string `json:"service_name" env:"OTEL_SERVICE_NAME"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Narrator: NarratorConfig{
			Backend:        BackendOllama,
			OllamaURL:      "http://127.0.0.1:11434",
			OpenRouterURL:  "https://openrouter.ai/api/v1",
			TimeoutSeconds: 60,
			WindowSize:     10,
		},
		Game: GameConfig{
			DefaultSetting:   "Fantasy Adventure",
			StartingItems:    []string{"Clothes"},
			MaxXPPerTag:      1000,
			MaxDamagePerTag:  50,
			DataDir:          "./assets/data",
			AutosaveInterval: 5,
		},
		Storage: StorageConfig{
			Driver: DriverFile,
			Dir:    "./data/saves",
			DSN:    "./data/solo-adventure.db",
		},
		WhatsApp: WhatsAppConfig{
			Enabled:    false,
			StoreDir:   "./whatsapp-store",
			ClientName: "SOLO ADVENTURE",
		},
		Server: ServerConfig{
			Port:           "8080",
			LogLevel:       "info",
			RequestTimeout: 120,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "solo-adventure",
		},
	}
}

// Validate rejects configurations the server cannot run with
func (c Config) Validate() error {
	switch c.Narrator.Backend {
	case BackendOllama, BackendOpenRouter:
	default:
		return fmt.Errorf("unknown narrator backend: %q", c.Narrator.Backend)
	}
	if c.Narrator.TimeoutSeconds <= 0 {
		return errors.New("narrator timeout must be positive")
	}
	if c.Narrator.WindowSize <= 0 {
		return errors.New("narrator window size must be positive")
	}
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Dir == "" {
			return errors.New("storage dir is required for the file driver")
		}
	case DriverSQLite:
		if c.Storage.DSN == "" {
			return errors.New("storage dsn is required for the sqlite3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	if c.Game.MaxXPPerTag < 0 || c.Game.MaxDamagePerTag < 0 {
		return errors.New("tag limits must not be negative")
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server request timeout must be positive")
	}
	return nil
}

// LoadConfig loads configuration from a file, writing the defaults there when
// it does not exist yet
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, SaveConfig(config, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the config file, then the optional dotenv files, then overlays
// environment variables, and validates the result
func Load(path string, dotenv ...string) (Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return config, err
	}

	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("load dotenv: %w", err)
	}

	if err := ParseEnv(&config); err != nil {
		return config, err
	}

	return config, config.Validate()
}

// ParseEnv overlays environment variables onto target
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(config)
}
