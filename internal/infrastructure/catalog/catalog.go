package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/asakaida/epiguard/internal/entities"
)

//go:embed default.yaml
var defaultCatalog []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a YAML catalog document
func Parse(data []byte) (*entities.Catalog, error) {
	var c entities.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog document: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	return &c, nil
}

// Default returns the built-in catalog
func Default() (*entities.Catalog, error) {
	return Parse(defaultCatalog)
}

// Provider serves the current catalog and can reload it from its source
type Provider struct {
	path    string // empty uses the built-in catalog
	current atomic.Pointer[entities.Catalog]
	logger  *slog.Logger
}

// NewProvider loads the catalog from path, or the built-in one when path is empty
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{path: path, logger: logger}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Catalog returns the current catalog
func (p *Provider) Catalog(ctx context.Context) (*entities.Catalog, error) {
	return p.current.Load(), nil
}

// Reload re-reads the catalog source. On error the previous catalog stays active.
func (p *Provider) Reload() error {
	data := defaultCatalog
	source := "built-in"
	if p.path != "" {
		var err error
		data, err = os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("failed to read catalog file: %w", err)
		}
		source = p.path
	}

	c, err := Parse(data)
	if err != nil {
		return err
	}

	p.current.Store(c)
	p.logger.Info("permission catalog loaded", "source", source, "groups", len(c.Groups))
	return nil
}
