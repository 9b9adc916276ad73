package model

// SequenceCounter is the durable counter behind work-order codes, one row per
// (entity type, year) partition.
type SequenceCounter struct {
	EntityType string `gorm:"primaryKey;size:64"`
	Year       int    `gorm:"primaryKey;autoIncrement:false"`
	LastValue  int64  `gorm:"not null;default:0"`
}
