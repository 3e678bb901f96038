package stock

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// LineItem is one requested partition within a dispatch. Bulk lines carry
// either an explicit BulkQty or a list of pre-selected units whose summed
// quantity becomes the required amount; count lines carry per-color-group
// piece requests.
type LineItem struct {
	LineIndex int
	ItemClass enums.ItemClass
	QualityID uuid.UUID
	DesignID  *uuid.UUID

	BulkQty decimal.Decimal
	UnitIDs []uuid.UUID

	Pieces []PieceRequest
}

// PieceRequest is one color-group sub-request on a count-measured line.
type PieceRequest struct {
	ColorGroupID uuid.UUID
	SubCut       *string
	PieceQty     int
}

// Shortage describes one line item (or color-group sub-request) the
// validator found short. Names are resolved for display; count quantities
// are carried as decimals alongside bulk ones.
type Shortage struct {
	LineIndex      int             `json:"lineIndex"`
	ItemClass      enums.ItemClass `json:"itemClass"`
	QualityID      uuid.UUID       `json:"qualityId"`
	QualityName    string          `json:"qualityName"`
	ColorGroupID   *uuid.UUID      `json:"colorGroupId,omitempty"`
	ColorGroupName string          `json:"colorGroupName,omitempty"`
	SubCut         *string         `json:"subCut,omitempty"`
	Required       decimal.Decimal `json:"required"`
	Available      decimal.Decimal `json:"available"`
	Deficit        decimal.Decimal `json:"deficit"`
}

// ValidationResult is the validator's verdict over a whole dispatch
// request.
type ValidationResult struct {
	Valid             bool       `json:"valid"`
	InsufficientItems []Shortage `json:"insufficientItems"`
}
