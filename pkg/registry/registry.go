// Package registry maps action type strings to action factories.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"sync"

	"github.com/dukex/operion-automation/pkg/actions/passthrough"
	"github.com/dukex/operion-automation/pkg/protocol"
)

// ErrInvalidPlugin is returned when a plugin does not export a usable ActionFactory.
var ErrInvalidPlugin = errors.New("invalid action plugin")

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
	fallback        protocol.ActionFactory
}

// NewRegistry creates a registry whose unknown action types fall through to passthrough.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "action_registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
		fallback:        passthrough.NewActionFactory(),
	}
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
}

// SetFallback replaces the factory used for unregistered action types.
func (r *Registry) SetFallback(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fallback = actionFactory
}

// IsRegistered reports whether actionType has its own factory.
func (r *Registry) IsRegistered(actionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actionFactories[actionType]

	return ok
}

// Types returns the registered action types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}

func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		if fallback == nil {
			return nil, fmt.Errorf("action type '%s' not registered", actionType)
		}

		r.logger.Debug("Unknown action type, using fallback", "action_type", actionType, "fallback", fallback.ID())
		factory = fallback
	}

	return factory.Create(config)
}

// LoadActionPlugins opens every *.so file under pluginsPath/actions and returns the
// ActionFactory each one exports as the "Action" symbol.
func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory, error) {
	rootPath := filepath.Join(pluginsPath, "actions")

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, err
	}

	l := r.logger.With(slog.String("path", rootPath))
	l.Info("Loading action plugins", "count", len(pluginPathList))

	factories := make([]protocol.ActionFactory, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup("Action")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, p, err)
		}

		factory, ok := symbol.(protocol.ActionFactory)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not export a protocol.ActionFactory", ErrInvalidPlugin, p)
		}

		factories = append(factories, factory)

		l.Info("Loaded action plugin", slog.String("plugin", p), slog.String("action_type", factory.ID()))
	}

	return factories, nil
}
