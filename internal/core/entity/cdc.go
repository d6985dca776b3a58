package entity

import "time"

// CDCFields carries the change-data-capture columns shared by catalog
// tables. Downstream replication consumers read them to reconstruct
// DELETE events that soft deletion would otherwise hide.
type CDCFields struct {
	// DeletedAt is set when the row is soft-deleted.
	DeletedAt *time.Time `db:"_deleted_at" json:"-"`

	// TxID orders changes in CDC pipelines (more reliable than xmin).
	TxID int64 `db:"_txid" json:"-"`
}

// IsDeleted reports whether the row has been soft-deleted.
func (c *CDCFields) IsDeleted() bool {
	return c.DeletedAt != nil
}

// MarkCDCDeleted sets the deletion timestamp.
func (c *CDCFields) MarkCDCDeleted() {
	now := time.Now().UTC()
	c.DeletedAt = &now
}

// ClearCDCDeleted removes the deletion timestamp (for undelete).
func (c *CDCFields) ClearCDCDeleted() {
	c.DeletedAt = nil
}
