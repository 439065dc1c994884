package narrator

import (
	"fmt"

	"github.com/user/solo-adventure/config"
)

// New builds the configured backend, wrapped for tracing
func New(cfg config.NarratorConfig) (Narrator, error) {
	var n Narrator
	switch cfg.Backend {
	case config.BackendOllama:
		n = NewOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Timeout())
	case config.BackendOpenRouter:
		n = NewOpenRouterClient(cfg.OpenRouterURL, cfg.APIKey, cfg.Model, cfg.Timeout())
	default:
		return nil, fmt.Errorf("unknown narrator backend: %q", cfg.Backend)
	}
	return Traced(n, cfg.Backend, cfg.Model), nil
}
