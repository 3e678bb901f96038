package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// FactoryStock is one factory's share of a quality's bulk stock.
type FactoryStock struct {
	FactoryID   uuid.UUID       `json:"factoryId"`
	FactoryName string          `json:"factoryName"`
	BulkQty     decimal.Decimal `json:"bulkQty"`
	UnitCount   int             `json:"unitCount"`
}

// ColorGroupStock is one color-group slice of a quality's count-measured
// stock, summed across factories.
type ColorGroupStock struct {
	ColorGroupID   uuid.UUID `json:"colorGroupId"`
	ColorGroupName string    `json:"colorGroupName"`
	SubCut         *string   `json:"subCut,omitempty"`
	PieceQty       int       `json:"pieceQty"`
}

// QualitySummary aggregates one quality's available stock across all
// factories. Quantities are available amounts, net of reservations.
type QualitySummary struct {
	QualityID      uuid.UUID         `json:"qualityId"`
	QualityName    string            `json:"qualityName"`
	TotalBulkQty   decimal.Decimal   `json:"totalBulkQty"`
	TotalUnitCount int               `json:"totalUnitCount"`
	TotalPieceQty  int               `json:"totalPieceQty"`
	Factories      []FactoryStock    `json:"factories"`
	ColorGroups    []ColorGroupStock `json:"colorGroups"`
}

// QualitySummary reports the quality's stock position: bulk broken down
// per factory, count-measured broken down per color group and sub cut.
func (v *Validator) QualitySummary(ctx context.Context, qualityID uuid.UUID) (*QualitySummary, error) {
	quality, err := v.masterdata.FindQuality(ctx, qualityID)
	if err != nil {
		return nil, err
	}

	records, err := v.inventory.ListByQuality(ctx, qualityID)
	if err != nil {
		return nil, err
	}

	summary := &QualitySummary{
		QualityID:    qualityID,
		QualityName:  quality.Name,
		TotalBulkQty: decimal.Zero,
		Factories:    []FactoryStock{},
		ColorGroups:  []ColorGroupStock{},
	}

	byFactory := map[uuid.UUID]*FactoryStock{}
	type groupKey struct {
		colorGroupID uuid.UUID
		subCut       string
	}
	byGroup := map[groupKey]*ColorGroupStock{}

	for _, record := range records {
		if record.ItemClass == enums.ItemClassBulk {
			bucket, ok := byFactory[record.FactoryID]
			if !ok {
				bucket = &FactoryStock{
					FactoryID:   record.FactoryID,
					FactoryName: v.masterdata.FactoryName(ctx, record.FactoryID),
					BulkQty:     decimal.Zero,
				}
				byFactory[record.FactoryID] = bucket
			}
			available := record.AvailableBulkQty()
			bucket.BulkQty = bucket.BulkQty.Add(available)
			bucket.UnitCount += record.ProducedUnitCount - record.ReservedUnitCount
			summary.TotalBulkQty = summary.TotalBulkQty.Add(available)
			summary.TotalUnitCount += record.ProducedUnitCount - record.ReservedUnitCount
			continue
		}

		if record.ColorGroupID == nil {
			continue
		}
		key := groupKey{colorGroupID: *record.ColorGroupID}
		if record.SubCut != nil {
			key.subCut = *record.SubCut
		}
		bucket, ok := byGroup[key]
		if !ok {
			bucket = &ColorGroupStock{
				ColorGroupID:   *record.ColorGroupID,
				ColorGroupName: v.masterdata.ColorGroupName(ctx, *record.ColorGroupID),
				SubCut:         record.SubCut,
			}
			byGroup[key] = bucket
		}
		available := record.AvailablePieceQty()
		bucket.PieceQty += available
		summary.TotalPieceQty += available
	}

	for _, bucket := range byFactory {
		summary.Factories = append(summary.Factories, *bucket)
	}
	sort.Slice(summary.Factories, func(i, j int) bool {
		return summary.Factories[i].FactoryID.String() < summary.Factories[j].FactoryID.String()
	})

	for _, bucket := range byGroup {
		summary.ColorGroups = append(summary.ColorGroups, *bucket)
	}
	sort.Slice(summary.ColorGroups, func(i, j int) bool {
		a, b := summary.ColorGroups[i], summary.ColorGroups[j]
		if a.ColorGroupID != b.ColorGroupID {
			return a.ColorGroupID.String() < b.ColorGroupID.String()
		}
		return derefString(a.SubCut) < derefString(b.SubCut)
	})

	return summary, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
