// Package snapshot reads catalog and order snapshots from spreadsheets and
// writes bundle proposals back out.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/bundlesync/engine/internal/domain/bundling"
)

const (
	ProductsSheet  = "Products"
	OrdersSheet    = "Orders"
	ProposalsSheet = "Bundles"
)

// ErrNoProducts is returned when the workbook has no product sheet or no usable rows.
var ErrNoProducts = errors.New("snapshot: no products found")

// RowIssue is a row that was skipped while reading.
type RowIssue struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Snapshot is the generator input read from a workbook.
type Snapshot struct {
	Products []bundling.ProductSnapshot
	Orders   []bundling.OrderSnapshot
	Skipped  []RowIssue
}

// ReadFile opens path and reads it as a snapshot workbook.
func ReadFile(path string) (*Snapshot, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return read(f)
}

// Read reads a snapshot workbook from r.
//
// The Products sheet (or the first sheet when none is named so) needs the
// columns sku and price; name, brand, category, vat_rate, stock,
// bundle_enabled and units_per_pack are optional. An empty stock cell means
// the product is not stock tracked. The optional Orders sheet has order_id,
// sku and quantity. Header names are matched case-insensitively.
func Read(r io.Reader) (*Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return read(f)
}

func read(f *excelize.File) (*Snapshot, error) {
	snap := &Snapshot{}

	productSheet := ProductsSheet
	if idx, _ := f.GetSheetIndex(productSheet); idx < 0 {
		productSheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(productSheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", productSheet, err)
	}
	if err := snap.readProducts(productSheet, rows); err != nil {
		return nil, err
	}

	if idx, _ := f.GetSheetIndex(OrdersSheet); idx >= 0 {
		rows, err := f.GetRows(OrdersSheet)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", OrdersSheet, err)
		}
		if err := snap.readOrders(rows); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Snapshot) readProducts(sheet string, rows [][]string) error {
	if len(rows) < 2 {
		return ErrNoProducts
	}
	cols := headerIndex(rows[0])
	if err := cols.require(sheet, "sku", "price"); err != nil {
		return err
	}

	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		p, err := productFromRow(cols, row)
		if err != nil {
			s.Skipped = append(s.Skipped, RowIssue{Sheet: sheet, Row: rowNum, Reason: err.Error()})
			continue
		}
		s.Products = append(s.Products, p)
	}
	if len(s.Products) == 0 {
		return ErrNoProducts
	}
	return nil
}

func (s *Snapshot) readOrders(rows [][]string) error {
	if len(rows) < 2 {
		return nil
	}
	cols := headerIndex(rows[0])
	if err := cols.require(OrdersSheet, "order_id", "sku"); err != nil {
		return err
	}

	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		o := bundling.OrderSnapshot{
			OrderID:  cols.get(row, "order_id"),
			SKU:      cols.get(row, "sku"),
			Quantity: 1,
		}
		if o.OrderID == "" || o.SKU == "" {
			s.Skipped = append(s.Skipped, RowIssue{Sheet: OrdersSheet, Row: rowNum, Reason: "order_id and sku are required"})
			continue
		}
		if raw := cols.get(row, "quantity"); raw != "" {
			q, err := strconv.Atoi(raw)
			if err != nil || q <= 0 {
				s.Skipped = append(s.Skipped, RowIssue{Sheet: OrdersSheet, Row: rowNum, Reason: "quantity must be a positive integer"})
				continue
			}
			o.Quantity = q
		}
		s.Orders = append(s.Orders, o)
	}
	return nil
}

func productFromRow(cols columns, row []string) (bundling.ProductSnapshot, error) {
	p := bundling.ProductSnapshot{
		SKU:           cols.get(row, "sku"),
		Name:          cols.get(row, "name"),
		Brand:         cols.get(row, "brand"),
		Category:      cols.get(row, "category"),
		VATRate:       21,
		BundleEnabled: true,
		UnitsPerPack:  1,
	}
	if p.SKU == "" {
		return p, errors.New("sku is required")
	}
	if p.Name == "" {
		p.Name = p.SKU
	}

	price, err := decimal.NewFromString(strings.ReplaceAll(cols.get(row, "price"), ",", "."))
	if err != nil {
		return p, fmt.Errorf("price %q is not a number", cols.get(row, "price"))
	}
	p.Price = price

	if raw := cols.get(row, "vat_rate"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("vat_rate %q is not an integer", raw)
		}
		p.VATRate = v
	}
	if raw := cols.get(row, "stock"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("stock %q is not an integer", raw)
		}
		p.Stock = &v
	}
	if raw := cols.get(row, "bundle_enabled"); raw != "" {
		v, err := parseBool(raw)
		if err != nil {
			return p, err
		}
		p.BundleEnabled = v
	}
	if raw := cols.get(row, "units_per_pack"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return p, fmt.Errorf("units_per_pack %q must be a positive integer", raw)
		}
		p.UnitsPerPack = v
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type columns map[string]int

func headerIndex(header []string) columns {
	cols := make(columns, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

func (c columns) require(sheet string, names ...string) error {
	for _, n := range names {
		if _, ok := c[n]; !ok {
			return fmt.Errorf("snapshot: sheet %s is missing column %q", sheet, n)
		}
	}
	return nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "da":
		return true, nil
	case "0", "false", "no", "n", "nu":
		return false, nil
	}
	return false, fmt.Errorf("bundle_enabled %q is not a boolean", raw)
}
