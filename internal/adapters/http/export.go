package httpadapter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
)

const exportSheet = "Alerts"

var exportHeaders = []string{
	"Created At", "Document ID", "Rule", "Vendor", "Airport", "Tail",
	"Fee Name", "Fee Amount", "Currency", "Status", "Slack Status",
}

// exportAlerts streams the same rows as GET /api/alerts as an xlsx workbook.
func (rt *Router) exportAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	rows := rt.alerts.List(r.Context(), ports.ListAlertsQuery{
		Limit:       queryInt(r, "limit", defaultListLimit),
		Q:           r.URL.Query().Get("q"),
		Status:      r.URL.Query().Get("status"),
		SlackStatus: r.URL.Query().Get("slack_status"),
	})

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(exportSheet, cell, header)
	}

	for i, alert := range rows {
		setExportRow(f, i+2, alert)
	}

	filename := fmt.Sprintf("alerts_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := f.Write(w); err != nil {
		// Headers are out already; all that is left is logging at the access
		// log level via the recorder's byte count.
		return
	}
}

func setExportRow(f *excelize.File, rowNum int, alert domain.AlertSummary) {
	values := []any{
		alert.CreatedAt.UTC().Format(time.RFC3339),
		alert.DocumentID,
		alert.RuleName,
		alert.Vendor,
		alert.AirportCode,
		alert.Tail,
		alert.FeeName,
		alert.FeeAmount.Or(0),
		alert.Currency,
		alert.Status,
		alert.SlackStatus,
	}
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
		_ = f.SetCellValue(exportSheet, cell, v)
	}
}
