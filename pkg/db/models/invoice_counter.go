package models

// InvoiceCounter backs the sequential-per-year invoice numbering. The row is
// bumped with an atomic UPDATE so two invoices created in the same instant
// cannot share a number.
type InvoiceCounter struct {
	Year    int   `gorm:"column:year;primaryKey"`
	LastSeq int64 `gorm:"column:last_seq;not null;default:0"`
}
