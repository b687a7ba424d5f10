package reporting

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
)

const (
	stockSheet       = "Stock"
	outstandingSheet = "Outstanding"
	// exportRowLimit bounds each sheet of the workbook.
	exportRowLimit = 50000
)

// Export writes an xlsx workbook with stock on hand and outstanding balances.
// Both sheets are loaded concurrently.
func (s *Service) Export(ctx context.Context, p access.Principal, w io.Writer) error {
	if err := access.RequireElevated(p); err != nil {
		return err
	}
	var (
		stock       []StockRow
		outstanding []OutstandingRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, _, err := s.store.StockLevels(gctx, StockFilter{Limit: exportRowLimit})
		if err != nil {
			return fmt.Errorf("reporting: export stock: %w", err)
		}
		stock = rows
		return nil
	})
	g.Go(func() error {
		rows, _, err := s.store.Outstanding(gctx, exportRowLimit, 0)
		if err != nil {
			return fmt.Errorf("reporting: export outstanding: %w", err)
		}
		outstanding = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("close workbook", slog.Any("error", err))
		}
	}()
	if err := f.SetSheetName("Sheet1", stockSheet); err != nil {
		return err
	}
	if err := writeStockSheet(f, stock); err != nil {
		return err
	}
	if _, err := f.NewSheet(outstandingSheet); err != nil {
		return err
	}
	if err := writeOutstandingSheet(f, outstanding); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("reporting: write workbook: %w", err)
	}
	return nil
}

func writeStockSheet(f *excelize.File, rows []StockRow) error {
	if err := f.SetSheetRow(stockSheet, "A1", &[]any{"Warehouse", "SKU", "Product", "Quantity", "Updated"}); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.WarehouseCode, r.SKU, r.ProductName, r.Quantity, r.UpdatedAt.Format(DateLayout)}
		if err := f.SetSheetRow(stockSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeOutstandingSheet(f *excelize.File, rows []OutstandingRow) error {
	if err := f.SetSheetRow(outstandingSheet, "A1", &[]any{"Customer", "Name", "Debit", "Credit", "Balance"}); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.CustomerCode, r.CustomerName, r.Debit.InexactFloat64(), r.Credit.InexactFloat64(), r.Balance.InexactFloat64()}
		if err := f.SetSheetRow(outstandingSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
