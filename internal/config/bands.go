package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Canonical band order for multispectral captures. Index math throughout
// the pipeline assumes this layout.
var canonicalBandOrder = []string{"red", "green", "blue", "nir"}

// BandRegistry declares the band layout of incoming captures. The pipeline
// only understands the canonical [red green blue nir] layout; the registry
// exists so a misconfigured capture rig fails at startup instead of
// producing silently wrong indices.
type BandRegistry struct {
	Order       []string           `yaml:"order"`
	Wavelengths map[string]float64 `yaml:"wavelengths_nm"`
}

// DefaultBandRegistry returns the canonical registry
func DefaultBandRegistry() *BandRegistry {
	return &BandRegistry{
		Order: append([]string(nil), canonicalBandOrder...),
		Wavelengths: map[string]float64{
			"red":   660,
			"green": 550,
			"blue":  480,
			"nir":   850,
		},
	}
}

// LoadBandRegistry reads and validates a YAML band registry.
// An empty path returns the built-in canonical registry.
func LoadBandRegistry(path string) (*BandRegistry, error) {
	if path == "" {
		return DefaultBandRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read band registry %s: %w", path, err)
	}
	var registry BandRegistry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse band registry %s: %w", path, err)
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("band registry %s: %w", path, err)
	}
	return &registry, nil
}

// Validate rejects any layout other than the canonical band order
func (r *BandRegistry) Validate() error {
	if len(r.Order) != len(canonicalBandOrder) {
		return fmt.Errorf("expected %d bands, got %d", len(canonicalBandOrder), len(r.Order))
	}
	for i, name := range r.Order {
		if name != canonicalBandOrder[i] {
			return fmt.Errorf("band %d must be %q, got %q", i, canonicalBandOrder[i], name)
		}
	}
	for name, nm := range r.Wavelengths {
		if nm <= 0 {
			return fmt.Errorf("band %q has non-positive wavelength %g", name, nm)
		}
	}
	return nil
}

// NIRIndex returns the position of the NIR band in the canonical layout
func (r *BandRegistry) NIRIndex() int {
	return len(canonicalBandOrder) - 1
}
