package parser

import (
	"fmt"
	"sort"
	"sync"

	"medorders/internal/config"
	"medorders/internal/port"
)

// ProviderFactory creates a TextGenerator from the model config.
type ProviderFactory func(cfg *config.ModelConfig) (port.TextGenerator, error)

// registry of model provider factories, populated by init() in each provider
// package or explicitly via RegisterProvider.
var (
	providersMu sync.RWMutex
	providers   = map[string]ProviderFactory{}
)

// RegisterProvider registers a model provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// Providers lists the registered provider names.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewGenerator creates a TextGenerator using the factory registered for cfg.Provider.
func NewGenerator(cfg *config.ModelConfig) (port.TextGenerator, error) {
	providersMu.RLock()
	factory, ok := providers[cfg.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}
	return factory(cfg)
}
