// Package rules decides whether an alert rule matches a parsed invoice.
// Matching is a pure function: a negative result is a value with a
// diagnostic reason, never an error.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

// Result carries the verdict plus the evidence that justified it. The
// evidence is cached on the alert row and reused for fee resolution.
type Result struct {
	Matched          bool
	Reason           string
	MatchedLineItems []domain.LineItem
	MatchedKeywords  []string
}

func miss(reason string) Result {
	return Result{Matched: false, Reason: reason}
}

// Match evaluates rule against inv. Gates are ordered so cheap filters run
// before any text scanning: enabled flag, allow-lists, review flag,
// invoice-level thresholds, then keywords and line-item guards.
func Match(rule domain.Rule, inv domain.Invoice) Result {
	if !rule.Enabled {
		return miss("rule disabled")
	}

	vendor := norm(inv.VendorNormal)
	if vendor == "" {
		vendor = norm(inv.VendorName)
	}
	if len(rule.VendorNormalizedIn) > 0 && !inAllowList(vendor, rule.VendorNormalizedIn) {
		return miss("vendor filter mismatch")
	}
	if len(rule.DocTypeIn) > 0 && !inAllowList(norm(inv.DocType), rule.DocTypeIn) {
		return miss("doc_type filter mismatch")
	}
	if len(rule.AirportCodeIn) > 0 && !inAllowList(norm(inv.AirportCode), rule.AirportCodeIn) {
		return miss("airport filter mismatch")
	}

	if rule.RequireReviewRequired && !inv.ReviewRequired {
		return miss("invoice not review_required")
	}

	// Threshold gates fail only when both the rule minimum and the invoice
	// value are present; missing data passes through.
	for _, t := range []struct {
		min   domain.Amount
		have  domain.Amount
		field string
	}{
		{rule.MinTotal, inv.Total, "total"},
		{rule.MinHandlingFee, inv.HandlingFee, "handling_fee"},
		{rule.MinServiceFee, inv.ServiceFee, "service_fee"},
		{rule.MinSurcharge, inv.Surcharge, "surcharge"},
		{rule.MinRiskScore, inv.RiskScore, "risk_score"},
	} {
		min, okMin := t.min.Float()
		have, okHave := t.have.Float()
		if okMin && okHave && have < min {
			return miss(fmt.Sprintf("%s below min_%s", t.field, t.field))
		}
	}

	keywords := normKeywords(rule.Keywords)
	matchedKws, matchedItems := keywordMatch(keywords, inv, rule.RequireChargedLineItems)

	if len(keywords) > 0 && len(matchedKws) == 0 {
		return miss("no keyword match")
	}

	sortedKws := sortedKeywords(matchedKws)

	if rule.RequireChargedLineItems && len(matchedItems) == 0 {
		return Result{
			Matched:         false,
			Reason:          "no charged line item matches",
			MatchedKeywords: sortedKws,
		}
	}

	if minLine, ok := rule.MinLineItemAmount.Float(); ok {
		var qualifying []domain.LineItem
		for _, li := range matchedItems {
			if li.Total.Or(0) >= minLine {
				qualifying = append(qualifying, li)
			}
		}
		if len(qualifying) == 0 {
			return Result{
				Matched:          false,
				Reason:           fmt.Sprintf("no line items >= %v", minLine),
				MatchedLineItems: matchedItems,
				MatchedKeywords:  sortedKws,
			}
		}
		matchedItems = qualifying
	}

	reason := "matched"
	if len(sortedKws) > 0 {
		reason = "keyword match: " + strings.Join(sortedKws, ", ")
	}

	return Result{
		Matched:          true,
		Reason:           reason,
		MatchedLineItems: matchedItems,
		MatchedKeywords:  sortedKws,
	}
}

// LiveLineItems recomputes the line-item evidence for an already-matched
// alert against the current version of its invoice. Only the
// evidence-producing checks run (keywords, charged filter, per-line minimum);
// lifecycle gates like the enabled flag or allow-lists are creation-time
// decisions and do not retroactively apply to existing rows.
func LiveLineItems(rule domain.Rule, inv domain.Invoice) []domain.LineItem {
	keywords := normKeywords(rule.Keywords)
	if len(keywords) == 0 {
		return nil
	}

	_, items := keywordMatch(keywords, inv, rule.RequireChargedLineItems)

	if minLine, ok := rule.MinLineItemAmount.Float(); ok {
		var qualifying []domain.LineItem
		for _, li := range items {
			if li.Total.Or(0) >= minLine {
				qualifying = append(qualifying, li)
			}
		}
		items = qualifying
	}
	return items
}

// keywordMatch scans line-item descriptions and the invoice text blob.
// A description-level hit attaches the line item as evidence; when charged
// evidence is required, waived and credited items are dropped here so a
// $0 "Handling Fee" row can never back a billable alert.
func keywordMatch(keywords []string, inv domain.Invoice, requireCharged bool) (map[string]struct{}, []domain.LineItem) {
	matchedKws := make(map[string]struct{})
	var matchedItems []domain.LineItem

	if len(keywords) == 0 {
		return matchedKws, nil
	}

	blob := inv.TextBlob()

	for _, li := range inv.LineItems {
		desc := norm(li.Label())
		liHit := false

		for _, kw := range keywords {
			inDesc := desc != "" && strings.Contains(desc, kw)
			if inDesc || strings.Contains(blob, kw) {
				matchedKws[kw] = struct{}{}
			}
			if inDesc {
				liHit = true
			}
		}

		if liHit {
			if requireCharged && !li.Charged() {
				continue
			}
			matchedItems = append(matchedItems, li)
		}
	}

	// Invoice-level keyword only.
	if len(matchedKws) == 0 {
		for _, kw := range keywords {
			if strings.Contains(blob, kw) {
				matchedKws[kw] = struct{}{}
			}
		}
	}

	return matchedKws, matchedItems
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if n := norm(k); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func inAllowList(value string, allowed []string) bool {
	for _, a := range allowed {
		if n := norm(a); n != "" && n == value {
			return true
		}
	}
	return false
}

func sortedKeywords(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for kw := range set {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
