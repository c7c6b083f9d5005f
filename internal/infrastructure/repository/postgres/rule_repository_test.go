package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var ruleColumns = []string{
	"id", "name", "enabled", "keywords",
	"min_total", "min_handling_fee", "min_service_fee", "min_surcharge", "min_risk_score", "min_line_item_amount",
	"vendor_normalized_in", "doc_type_in", "airport_code_in",
	"require_review_required", "require_charged_line_items",
	"slack_channel", "created_at",
}

func TestListAllNormalizesEnabledAndDecodesLists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(ruleColumns).
		AddRow("r-1", "Ramp Fee", true, []byte(`["ramp","handling"]`),
			100.0, nil, nil, nil, nil, 50.0,
			[]byte(`["signature"]`), nil, nil,
			false, true,
			nil, time.Now()).
		AddRow("r-2", "Legacy", false, []byte(`"fuel"`),
			nil, nil, nil, nil, nil, nil,
			nil, nil, nil,
			false, false,
			"#alerts", time.Now())

	mock.ExpectQuery("FROM invoice_alert_rules").WillReturnRows(rows)

	repo := NewRuleRepository(db, DefaultTables(), nil)
	rules, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	first := rules[0]
	if !first.Enabled {
		t.Fatalf("expected first rule enabled")
	}
	if len(first.Keywords) != 2 || first.Keywords[0] != "ramp" {
		t.Fatalf("expected decoded keywords, got %v", first.Keywords)
	}
	if v, ok := first.MinTotal.Float(); !ok || v != 100.0 {
		t.Fatalf("expected min_total 100, got %v valid=%v", v, ok)
	}
	if first.MinHandlingFee.Valid() {
		t.Fatalf("expected absent min_handling_fee to stay invalid")
	}
	if !first.RequireChargedLineItems {
		t.Fatalf("expected require_charged_line_items")
	}

	second := rules[1]
	if second.Enabled {
		t.Fatalf("expected second rule disabled")
	}
	// A single JSON string is tolerated as a one-element list.
	if len(second.Keywords) != 1 || second.Keywords[0] != "fuel" {
		t.Fatalf("expected single-string keywords decode, got %v", second.Keywords)
	}
	if second.SlackChannel != "#alerts" {
		t.Fatalf("expected slack channel, got %q", second.SlackChannel)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
