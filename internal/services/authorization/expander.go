package authorization

import (
	"context"
	"fmt"

	"github.com/asakaida/epiguard/internal/entities"
)

// CatalogProvider supplies the permission group catalog.
// The catalog is configuration data owned outside this package.
type CatalogProvider interface {
	Catalog(ctx context.Context) (*entities.Catalog, error)
}

// Expand computes the effective permission set for a role's raw identifiers.
// Every raw identifier is kept, including ones the catalog does not know.
// Each raw identifier that names a group adds all of that group's children.
// A nil or empty catalog leaves the raw set unchanged.
func Expand(raw []entities.PermissionID, catalog *entities.Catalog) *entities.PermissionSet {
	index := catalog.GroupIndex()

	result := make([]entities.PermissionID, 0, len(raw))
	result = append(result, raw...)
	for _, id := range raw {
		if children, ok := index[id]; ok {
			result = append(result, children...)
		}
	}

	return entities.NewPermissionSet(result...)
}

// Expander expands roles using the catalog from a CatalogProvider
type Expander struct {
	catalogs CatalogProvider
}

// NewExpander creates a new Expander
func NewExpander(catalogs CatalogProvider) *Expander {
	return &Expander{
		catalogs: catalogs,
	}
}

// ExpandRole returns the effective permission set of the given role.
// A nil role expands to the empty set.
func (e *Expander) ExpandRole(ctx context.Context, role *entities.Role) (*entities.PermissionSet, error) {
	if role == nil {
		return entities.NewPermissionSet(), nil
	}

	catalog, err := e.catalogs.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get permission catalog: %w", err)
	}

	return Expand(role.PermissionIDs, catalog), nil
}

// Catalog returns the provider's current catalog
func (e *Expander) Catalog(ctx context.Context) (*entities.Catalog, error) {
	return e.catalogs.Catalog(ctx)
}

// StaticCatalog is a CatalogProvider returning a fixed catalog
type StaticCatalog struct {
	catalog *entities.Catalog
}

// NewStaticCatalog creates a provider for an already loaded catalog
func NewStaticCatalog(catalog *entities.Catalog) *StaticCatalog {
	return &StaticCatalog{catalog: catalog}
}

// Catalog implements CatalogProvider
func (s *StaticCatalog) Catalog(ctx context.Context) (*entities.Catalog, error) {
	return s.catalog, nil
}
