package model

import "time"

// Equipment is a directory record; the engine only checks that it exists.
type Equipment struct {
	ID        string  `gorm:"primaryKey;size:64"`
	Name      string  `gorm:"size:256;not null"`
	CompanyID *string `gorm:"index;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Company is a directory record referenced by plans and occurrences.
type Company struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:256;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
