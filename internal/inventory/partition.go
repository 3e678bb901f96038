package inventory

import (
	"strings"

	"github.com/google/uuid"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// Partition identifies one InventoryRecord: the tuple of item class,
// quality, design, factory, color group and sub cut. Nil dimensions are
// part of the identity (a record with no design is distinct from every
// record that has one).
type Partition struct {
	ItemClass    enums.ItemClass
	QualityID    uuid.UUID
	DesignID     *uuid.UUID
	FactoryID    uuid.UUID
	ColorGroupID *uuid.UUID
	SubCut       *string
}

// PartitionOf extracts the partition key from a stored record.
func PartitionOf(record *models.InventoryRecord) Partition {
	return Partition{
		ItemClass:    record.ItemClass,
		QualityID:    record.QualityID,
		DesignID:     record.DesignID,
		FactoryID:    record.FactoryID,
		ColorGroupID: record.ColorGroupID,
		SubCut:       record.SubCut,
	}
}

// Key renders a stable string form usable as a map key.
func (p Partition) Key() string {
	parts := []string{
		string(p.ItemClass),
		p.QualityID.String(),
		uuidOrDash(p.DesignID),
		p.FactoryID.String(),
		uuidOrDash(p.ColorGroupID),
		stringOrDash(p.SubCut),
	}
	return strings.Join(parts, "|")
}

func uuidOrDash(id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}

func stringOrDash(value *string) string {
	if value == nil {
		return "-"
	}
	return *value
}
