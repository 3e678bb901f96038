package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quality is a fabric quality (the primary stock grouping). Master-data
// CRUD lives in the ERP layer; these rows are read for names and keys.
type Quality struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;size:120;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (q *Quality) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Design is a printed/woven design belonging to a quality.
type Design struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	QualityID uuid.UUID `gorm:"column:quality_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;size:120;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (d *Design) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// ColorGroup splits a design's count-measured stock into matched sets.
type ColorGroup struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	DesignID  *uuid.UUID `gorm:"column:design_id;type:uuid;index"`
	Name      string     `gorm:"column:name;size:120;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *ColorGroup) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Factory is a production location holding stock.
type Factory struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;size:120;not null;uniqueIndex"`
	City      *string   `gorm:"column:city;size:120"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (f *Factory) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
