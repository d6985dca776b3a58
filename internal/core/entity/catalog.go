package entity

import (
	"context"

	"magazzino/internal/core/apperror"
)

// Catalog is the shared shape of reference data: movement reasons,
// warehouses and products all embed it. Code is unique within the
// tenant database; ParentID and IsFolder support folder hierarchies.
type Catalog struct {
	BaseCatalog

	Code string `db:"code" json:"code"`

	Name string `db:"name" json:"name"`

	ParentID *string `db:"parent_id" json:"parentId,omitempty"`

	IsFolder bool `db:"is_folder" json:"isFolder"`
}

// NewCatalog creates a Catalog with a fresh id.
func NewCatalog(code, name string) Catalog {
	return Catalog{
		BaseCatalog: NewBaseCatalog(),
		Code:        code,
		Name:        name,
	}
}

// Validate checks the fields shared by every catalog entity. Code is
// allowed to be empty here; the service fills it from the numerator
// before the row is written.
func (c *Catalog) Validate(ctx context.Context) error {
	if c.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}

	return nil
}

// SetParent sets or clears the parent reference.
func (c *Catalog) SetParent(parentID string) {
	if parentID == "" {
		c.ParentID = nil
	} else {
		c.ParentID = &parentID
	}
}

// IsRoot reports whether the entity sits at the top of the hierarchy.
func (c *Catalog) IsRoot() bool {
	return c.ParentID == nil || *c.ParentID == ""
}
