package components

import (
	"context"
	"log/slog"

	"github.com/RadiaWorks/ScanGate/internal/integrations/catalog"
	"github.com/RadiaWorks/ScanGate/internal/label"
	"github.com/pkg/errors"
)

// Component is the enriched view of one scanned reel/bag label.
type Component struct {
	PartNumber   string `json:"part_number"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Description  string `json:"description,omitempty"`
	NominalValue string `json:"nominal_value,omitempty"`
	Quantity     int    `json:"quantity"`
	LotCode      string `json:"lot_code,omitempty"`
}

type Service struct {
	catalog catalog.Client
}

func New(c catalog.Client) *Service {
	return &Service{catalog: c}
}

// ProcessLabel parses a raw Data Matrix payload and enriches it from the
// catalog. Catalog outages degrade to label-only data rather than failing the
// scan.
func (s *Service) ProcessLabel(ctx context.Context, raw string) (Component, error) {
	l, err := label.Parse(raw)
	if err != nil {
		return Component{}, errors.Wrap(err, "parse label")
	}

	part := l.ManufacturerPartNumber
	if part == "" {
		part = l.CustomerPartNumber
	}

	comp := Component{
		PartNumber: part,
		Quantity:   l.Quantity,
		LotCode:    l.LotCode,
	}

	if s.catalog != nil {
		p, err := s.catalog.ProductDetails(ctx, part)
		if err != nil {
			slog.Warn("catalog lookup failed", "part_number", part, "error", err.Error())
		} else {
			comp.Manufacturer = p.Manufacturer
			comp.Description = p.Description
			comp.NominalValue = p.NominalValue
		}
	}

	slog.Info("component scanned",
		"part_number", comp.PartNumber,
		"manufacturer", comp.Manufacturer,
		"nominal", comp.NominalValue,
		"quantity", comp.Quantity,
	)
	return comp, nil
}
