package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
)

type warehouseRow struct {
	entity.BaseCatalog
	Code               string `db:"code" json:"code"`
	Name               string `db:"name" json:"name"`
	AllowNegativeStock bool   `db:"allow_negative_stock" json:"allow_negative_stock"`
}

func TestExtractDBColumns_CDCFields(t *testing.T) {
	cols := ExtractDBColumns[warehouseRow]()

	expectedCols := []string{
		"id", "deletion_mark", "version", "attributes", "_deleted_at", "_txid",
		"code", "name", "allow_negative_stock",
	}

	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
}

func TestStructToMap_CDCFields(t *testing.T) {
	now := time.Now().UTC()
	row := warehouseRow{
		BaseCatalog: entity.BaseCatalog{
			BaseEntity: entity.BaseEntity{
				ID:           id.New(),
				DeletionMark: true,
				Version:      5,
				CDCFields: entity.CDCFields{
					TxID:      12345,
					DeletedAt: &now,
				},
			},
		},
		Code:               "WH-001",
		Name:               "Central warehouse",
		AllowNegativeStock: true,
	}

	m := StructToMap(row)

	assert.Equal(t, row.ID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, int64(12345), m["_txid"])
	assert.Equal(t, &now, m["_deleted_at"])
	assert.Equal(t, "WH-001", m["code"])
	assert.Equal(t, "Central warehouse", m["name"])
	assert.Equal(t, true, m["allow_negative_stock"])
}
