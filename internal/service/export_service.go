package service

import (
	"context"
	"fmt"
	"io"

	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Data"

// ExportService renders listings as XLSX workbooks.
type ExportService interface {
	ExportStock(ctx context.Context, q StockQuery, w io.Writer) error
	ExportRequests(ctx context.Context, q RequestQuery, w io.Writer) error
	ExportMovements(ctx context.Context, q MovementQuery, w io.Writer) error
}

type exportService struct {
	stockRepo   repository.StockRepository
	requestRepo repository.RequestRepository
}

func NewExportService(stockRepo repository.StockRepository, requestRepo repository.RequestRepository) ExportService {
	return &exportService{stockRepo: stockRepo, requestRepo: requestRepo}
}

// writeWorkbook streams header and rows into a single-sheet workbook.
func writeWorkbook(w io.Writer, header []interface{}, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{Height: 18}); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return f.Write(w)
}

func storeName(s *model.Store) string {
	if s == nil {
		return ""
	}
	return s.Code + " " + s.Name
}

func materialCells(m *model.Material) (string, string, string) {
	if m == nil {
		return "", "", ""
	}
	unit := ""
	if m.Unit != nil {
		unit = m.Unit.Code
	}
	return m.Code, m.Name, unit
}

func (s *exportService) ExportStock(ctx context.Context, q StockQuery, w io.Writer) error {
	storeID, err := parseOptionalID("store_id", q.StoreID)
	if err != nil {
		return err
	}
	materialID, err := parseOptionalID("material_id", q.MaterialID)
	if err != nil {
		return err
	}
	stock, err := s.stockRepo.ListAll(ctx, repository.StockFilter{
		StoreID:    storeID,
		MaterialID: materialID,
		Search:     q.Search,
		LowOnly:    q.LowOnly,
	})
	if err != nil {
		return err
	}

	rows := make([][]interface{}, 0, len(stock))
	for _, st := range stock {
		code, name, unit := materialCells(st.Material)
		reorder, low := 0.0, false
		if st.Material != nil {
			reorder = st.Material.ReorderLevel.InexactFloat64()
			low = st.QtyOnHand.LessThanOrEqual(st.Material.ReorderLevel)
		}
		rows = append(rows, []interface{}{
			storeName(st.Store), code, name, unit,
			st.QtyOnHand.InexactFloat64(), reorder, low,
			st.UpdatedAt.Format(timeLayout),
		})
	}
	return writeWorkbook(w, []interface{}{
		"Store", "Material Code", "Material", "Unit", "On Hand", "Reorder Level", "Low", "Updated At",
	}, rows)
}

// ExportRequests writes one row per request line.
func (s *exportService) ExportRequests(ctx context.Context, q RequestQuery, w io.Writer) error {
	f, err := q.filter()
	if err != nil {
		return err
	}
	requests, err := s.requestRepo.ListForExport(ctx, f)
	if err != nil {
		return err
	}

	var rows [][]interface{}
	for _, r := range requests {
		site, requester := "", ""
		if r.Site != nil {
			site = r.Site.Name
		}
		if r.Requester != nil {
			requester = r.Requester.Username
		}
		for _, it := range r.Items {
			code, name, unit := materialCells(it.Material)
			if it.Unit != nil {
				unit = it.Unit.Code
			}
			approved := ""
			if it.QtyApproved.Valid {
				approved = it.QtyApproved.Decimal.String()
			}
			rows = append(rows, []interface{}{
				r.Code, string(r.Status), site, storeName(r.Store), requester,
				r.CreatedAt.Format(timeLayout),
				code, name, unit,
				it.QtyRequested.InexactFloat64(), approved,
				it.QtyIssued.InexactFloat64(), it.QtyRemaining.InexactFloat64(), it.QtyReceived.InexactFloat64(),
			})
		}
	}
	return writeWorkbook(w, []interface{}{
		"Request", "Status", "Site", "Store", "Requested By", "Created At",
		"Material Code", "Material", "Unit",
		"Requested", "Approved", "Issued", "Remaining", "Received",
	}, rows)
}

func (s *exportService) ExportMovements(ctx context.Context, q MovementQuery, w io.Writer) error {
	f, err := q.filter()
	if err != nil {
		return err
	}
	movements, err := s.stockRepo.ListAllMovements(ctx, f)
	if err != nil {
		return err
	}

	rows := make([][]interface{}, 0, len(movements))
	for _, m := range movements {
		code, name, _ := materialCells(m.Material)
		direction, price, creator := "", "", ""
		if m.Direction != nil {
			direction = string(*m.Direction)
		}
		if m.UnitPrice.Valid {
			price = m.UnitPrice.Decimal.String()
		}
		if m.Creator != nil {
			creator = m.Creator.Username
		}
		rows = append(rows, []interface{}{
			m.CreatedAt.Format(timeLayout), storeName(m.Store), code, name,
			string(m.MovementType), direction, string(m.SourceType), m.SourceID.String(),
			m.Qty.InexactFloat64(), price, m.BalanceAfter.InexactFloat64(), m.Notes, creator,
		})
	}
	return writeWorkbook(w, []interface{}{
		"Date", "Store", "Material Code", "Material", "Type", "Direction", "Source", "Source ID",
		"Qty", "Unit Price", "Balance After", "Notes", "By",
	}, rows)
}
