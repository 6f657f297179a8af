package analyzer

import (
	"sync"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// modelProvider caches compiled bundles per path. Only successful loads are
// cached, so a bad path heals as soon as the artifact appears on disk.
type modelProvider struct {
	mu      sync.RWMutex
	bundles map[string]*ModelBundle
}

// NewModelProvider creates an empty bundle cache
func NewModelProvider() ModelProvider {
	return &modelProvider{bundles: make(map[string]*ModelBundle)}
}

// Get returns the cached bundle for path, loading it at most once across
// concurrent callers
func (p *modelProvider) Get(path string) (*ModelBundle, error) {
	if path == "" {
		return nil, apperrors.NewModelLoadError("no model path configured", nil)
	}

	p.mu.RLock()
	bundle, ok := p.bundles[path]
	p.mu.RUnlock()
	if ok {
		return bundle, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Double-checked: another caller may have loaded it while we waited
	if bundle, ok := p.bundles[path]; ok {
		return bundle, nil
	}
	bundle, err := LoadModelBundle(path)
	if err != nil {
		return nil, err
	}
	p.bundles[path] = bundle
	return bundle, nil
}

// Reset drops every cached bundle, forcing reloads on the next Get
func (p *modelProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bundles = make(map[string]*ModelBundle)
}
