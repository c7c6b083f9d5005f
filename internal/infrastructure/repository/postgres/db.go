package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Tables holds the physical table names. The alerting schema predates this
// service and differs between environments, so every name is overridable.
type Tables struct {
	Rules     string
	Alerts    string
	Events    string
	Invoices  string
	Documents string
}

func DefaultTables() Tables {
	return Tables{
		Rules:     "invoice_alert_rules",
		Alerts:    "invoice_alerts",
		Events:    "invoice_alert_events",
		Invoices:  "parsed_invoices",
		Documents: "documents",
	}
}

func (t Tables) normalize() Tables {
	def := DefaultTables()
	pick := func(v, fallback string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return fallback
		}
		return v
	}
	return Tables{
		Rules:     pick(t.Rules, def.Rules),
		Alerts:    pick(t.Alerts, def.Alerts),
		Events:    pick(t.Events, def.Events),
		Invoices:  pick(t.Invoices, def.Invoices),
		Documents: pick(t.Documents, def.Documents),
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates every table the service touches if it is missing.
// Shared tables (parsed invoices, documents) normally exist already; the
// CREATE IF NOT EXISTS makes local and test environments self-bootstrapping.
func EnsureSchema(ctx context.Context, db *sql.DB, tables Tables) error {
	t := tables.normalize()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	is_enabled BOOLEAN,
	enabled BOOLEAN,
	keywords JSONB,
	min_total DOUBLE PRECISION,
	min_handling_fee DOUBLE PRECISION,
	min_service_fee DOUBLE PRECISION,
	min_surcharge DOUBLE PRECISION,
	min_risk_score DOUBLE PRECISION,
	min_line_item_amount DOUBLE PRECISION,
	vendor_normalized_in JSONB,
	doc_type_in JSONB,
	airport_code_in JSONB,
	require_review_required BOOLEAN NOT NULL DEFAULT FALSE,
	require_charged_line_items BOOLEAN NOT NULL DEFAULT FALSE,
	slack_channel TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[2]s (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	document_id TEXT,
	parsed_invoice_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	slack_status TEXT,
	slack_error TEXT,
	match_reason TEXT,
	match_payload JSONB,
	UNIQUE (rule_id, parsed_invoice_id)
);

CREATE INDEX IF NOT EXISTS idx_%[2]s_created_at ON %[2]s(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_%[2]s_slack_status ON %[2]s(slack_status);

CREATE TABLE IF NOT EXISTS %[3]s (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	document_id TEXT,
	rule_id TEXT,
	parsed_invoice_id TEXT,
	slack_ts TEXT,
	fired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	payload JSONB
);

CREATE TABLE IF NOT EXISTS %[4]s (
	id TEXT PRIMARY KEY,
	document_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	vendor_name TEXT,
	vendor_normalized TEXT,
	invoice_number TEXT,
	invoice_date TEXT,
	airport_code TEXT,
	doc_type TEXT,
	tail_number TEXT,
	currency TEXT,
	total DOUBLE PRECISION,
	handling_fee DOUBLE PRECISION,
	service_fee DOUBLE PRECISION,
	surcharge DOUBLE PRECISION,
	risk_score DOUBLE PRECISION,
	review_required BOOLEAN NOT NULL DEFAULT FALSE,
	line_items JSONB
);

CREATE INDEX IF NOT EXISTS idx_%[4]s_document_id ON %[4]s(document_id);
CREATE INDEX IF NOT EXISTS idx_%[4]s_created_at ON %[4]s(created_at DESC);

CREATE TABLE IF NOT EXISTS %[5]s (
	id TEXT PRIMARY KEY,
	attachment_filename TEXT,
	storage_bucket TEXT,
	storage_path TEXT,
	raw_file_url TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`, t.Rules, t.Alerts, t.Events, t.Invoices, t.Documents)

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
