package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/resilience"
)

type RuleRepository struct {
	db       *sql.DB
	table    string
	executor *resilience.Executor
}

func NewRuleRepository(db *sql.DB, tables Tables, executor *resilience.Executor) *RuleRepository {
	return &RuleRepository{db: db, table: tables.normalize().Rules, executor: executor}
}

// ListAll returns every rule. The legacy is_enabled/enabled column pair is
// collapsed here: either flag set means enabled, both absent means disabled.
func (r *RuleRepository) ListAll(ctx context.Context) ([]domain.Rule, error) {
	query := fmt.Sprintf(`
SELECT
	id, name,
	COALESCE(is_enabled, enabled, FALSE) AS enabled,
	keywords,
	min_total, min_handling_fee, min_service_fee, min_surcharge, min_risk_score, min_line_item_amount,
	vendor_normalized_in, doc_type_in, airport_code_in,
	COALESCE(require_review_required, FALSE),
	COALESCE(require_charged_line_items, FALSE),
	slack_channel,
	created_at
FROM %s
ORDER BY created_at ASC
`, r.table)

	var out []domain.Rule
	err := runRead(ctx, r.executor, "postgres.rule_list", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("query rules: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		return scanRules(rows, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanRules(rows *sql.Rows, out *[]domain.Rule) error {
	for rows.Next() {
		var rule domain.Rule
		var keywordsRaw, vendorsRaw, docTypesRaw, airportsRaw []byte
		var slackChannel sql.NullString

		err := rows.Scan(
			&rule.ID, &rule.Name,
			&rule.Enabled,
			&keywordsRaw,
			&rule.MinTotal, &rule.MinHandlingFee, &rule.MinServiceFee, &rule.MinSurcharge, &rule.MinRiskScore, &rule.MinLineItemAmount,
			&vendorsRaw, &docTypesRaw, &airportsRaw,
			&rule.RequireReviewRequired,
			&rule.RequireChargedLineItems,
			&slackChannel,
			&rule.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan rule: %w", err)
		}

		rule.Keywords = decodeStringList(keywordsRaw)
		rule.VendorNormalizedIn = decodeStringList(vendorsRaw)
		rule.DocTypeIn = decodeStringList(docTypesRaw)
		rule.AirportCodeIn = decodeStringList(airportsRaw)
		rule.SlackChannel = slackChannel.String

		*out = append(*out, rule)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rules: %w", err)
	}
	return nil
}

// decodeStringList tolerates the shapes rule authors have stored: a JSON
// array, a single JSON string, or NULL.
func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}
