package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"helpr/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	auditSheet     = "Audit Log"
	maxExportRows  = 10000
	exportMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var auditHeaders = []any{
	"ID", "Created At", "Admin ID", "Action", "Target Type", "Target ID",
	"Reason", "Previous State", "New State", "IP Address", "User Agent",
}

// handleAuditExport streams the filtered audit log as an xlsx workbook.
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	actions, err := s.collectAudit(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := buildAuditWorkbook(actions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("audit_log_%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", exportMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("failed to write audit export")
		return
	}
	s.logger.Info().Int("rows", len(actions)).Msg("audit log exported")
}

func (s *HTTPServer) collectAudit(ctx context.Context, filter models.AuditFilter) ([]*models.AdminAction, error) {
	var out []*models.AdminAction
	for pageNum := 1; len(out) < maxExportRows; pageNum++ {
		page := models.NewPage(pageNum, models.MaxPageSize, models.MaxPageSize)
		items, total, err := s.svc.Audit.List(ctx, filter, page)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < page.Limit || len(out) >= total {
			break
		}
	}
	if len(out) > maxExportRows {
		out = out[:maxExportRows]
	}
	return out, nil
}

func buildAuditWorkbook(actions []*models.AdminAction) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", auditSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := f.SetSheetRow(auditSheet, "A1", &auditHeaders); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(auditSheet, "A1", "K1", style)

	for i, a := range actions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			a.ID,
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.AdminID,
			string(a.ActionType),
			string(a.TargetType),
			a.TargetID,
			a.Reason,
			snapshotText(a.PreviousState),
			snapshotText(a.NewState),
			a.Provenance.IPAddress,
			a.Provenance.UserAgent,
		}
		if err := f.SetSheetRow(auditSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(auditSheet, "A", "A", 8)
	_ = f.SetColWidth(auditSheet, "B", "B", 22)
	_ = f.SetColWidth(auditSheet, "C", "G", 16)
	_ = f.SetColWidth(auditSheet, "H", "I", 40)
	_ = f.SetColWidth(auditSheet, "J", "K", 20)
	return f, nil
}

func snapshotText(snap map[string]any) string {
	if len(snap) == 0 {
		return ""
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(b)
}
