package snapshot

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bundlesync/engine/internal/domain/bundling"
)

var proposalHeaders = []string{
	"SKU", "Title", "Brand", "Category", "Items", "Pattern",
	"Base price", "Final price", "VAT", "Units", "Max stock", "Score",
	"Marketing title", "Marketing description", "Benefits",
}

// WriteProposals writes ranked candidates as one row each to w.
func WriteProposals(w io.Writer, candidates []bundling.Candidate) error {
	f, err := buildProposals(candidates)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveProposals writes ranked candidates to a workbook at path.
func SaveProposals(path string, candidates []bundling.Candidate) error {
	f, err := buildProposals(candidates)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func buildProposals(candidates []bundling.Candidate) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := ProposalsSheet
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range proposalHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(proposalHeaders), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return nil, err
	}

	for i, c := range candidates {
		row := []any{
			c.SKU, c.Title, c.Brand, c.Category, c.ItemSummary(), c.Pattern,
			c.BasePrice.StringFixed(2), c.FinalPrice.StringFixed(2), c.VATRate,
			c.TotalUnits, c.MaxProducibleUnits, c.Score,
		}
		if c.Enrichment != nil {
			row = append(row, c.Enrichment.Title, c.Enrichment.Description, strings.Join(c.Enrichment.Benefits, "\n"))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	widths := []float64{22, 40, 14, 14, 40, 12, 10, 10, 6, 6, 10, 8, 40, 60, 40}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return nil, err
		}
	}
	return f, nil
}
