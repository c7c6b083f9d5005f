package rules

import (
	"testing"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

func enabledRule(keywords ...string) domain.Rule {
	return domain.Rule{
		ID:       "r-1",
		Name:     "Ramp Fee",
		Enabled:  true,
		Keywords: keywords,
	}
}

func invoiceWithItems(items ...domain.LineItem) domain.Invoice {
	return domain.Invoice{
		ID:         "inv-1",
		DocumentID: "doc-1",
		VendorName: "Signature Aviation",
		LineItems:  items,
	}
}

func TestMatchDisabledRule(t *testing.T) {
	rule := enabledRule("ramp")
	rule.Enabled = false

	res := Match(rule, invoiceWithItems())
	if res.Matched {
		t.Fatalf("expected no match")
	}
	if res.Reason != "rule disabled" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestMatchVendorAllowList(t *testing.T) {
	rule := enabledRule("ramp")
	rule.VendorNormalizedIn = []string{"atlantic"}

	inv := invoiceWithItems(domain.LineItem{Description: "Ramp fee", Total: domain.NewAmount(100)})
	inv.VendorNormal = "signature"

	res := Match(rule, inv)
	if res.Matched || res.Reason != "vendor filter mismatch" {
		t.Fatalf("expected vendor mismatch, got %+v", res)
	}

	rule.VendorNormalizedIn = []string{"Signature"}
	res = Match(rule, inv)
	if !res.Matched {
		t.Fatalf("expected case-insensitive allow-list match, got %+v", res)
	}
}

func TestMatchKeywordOnChargedLineItem(t *testing.T) {
	rule := enabledRule("ramp")
	inv := invoiceWithItems(domain.LineItem{
		Description: "Ramp Fee after hours",
		Total:       domain.NewAmount(125),
	})

	res := Match(rule, inv)
	if !res.Matched {
		t.Fatalf("expected match, got reason %q", res.Reason)
	}
	if res.Reason != "keyword match: ramp" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if len(res.MatchedLineItems) != 1 {
		t.Fatalf("expected matched line item evidence, got %d", len(res.MatchedLineItems))
	}
	if len(res.MatchedKeywords) != 1 || res.MatchedKeywords[0] != "ramp" {
		t.Fatalf("unexpected matched keywords %v", res.MatchedKeywords)
	}
}

func TestMatchChargedOnlyDropsWaivedItems(t *testing.T) {
	rule := enabledRule("handling")
	rule.RequireChargedLineItems = true

	// A waived fee: description matches but nothing was billed.
	inv := invoiceWithItems(domain.LineItem{
		Description: "Handling Fee (waived)",
		Total:       domain.NewAmount(0),
	})

	res := Match(rule, inv)
	if res.Matched {
		t.Fatalf("expected no match for waived item")
	}
	if res.Reason != "no charged line item matches" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if len(res.MatchedKeywords) != 1 {
		t.Fatalf("expected keyword evidence to survive, got %v", res.MatchedKeywords)
	}
}

func TestMatchBlobHitWithoutChargedItem(t *testing.T) {
	rule := enabledRule("signature")
	rule.RequireChargedLineItems = true

	// Keyword appears in the vendor name only; no line item can back it.
	inv := invoiceWithItems(domain.LineItem{Description: "Fuel", Total: domain.NewAmount(500)})

	res := Match(rule, inv)
	if res.Matched {
		t.Fatalf("expected no match without charged item evidence")
	}
	if res.Reason != "no charged line item matches" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestMatchThresholdRequiresBothValues(t *testing.T) {
	rule := enabledRule("ramp")
	rule.MinTotal = domain.NewAmount(100)

	inv := invoiceWithItems(domain.LineItem{Description: "Ramp fee", Total: domain.NewAmount(50)})
	inv.Total = domain.NewAmount(50)

	res := Match(rule, inv)
	if res.Matched || res.Reason != "total below min_total" {
		t.Fatalf("expected total threshold miss, got %+v", res)
	}

	// Missing invoice total passes the gate.
	inv.Total = domain.Amount{}
	res = Match(rule, inv)
	if !res.Matched {
		t.Fatalf("expected match with absent total, got %+v", res)
	}
}

func TestMatchMinLineItemAmountFilters(t *testing.T) {
	rule := enabledRule("fee")
	rule.MinLineItemAmount = domain.NewAmount(500)

	inv := invoiceWithItems(
		domain.LineItem{Description: "Small fee", Total: domain.NewAmount(50)},
		domain.LineItem{Description: "Big fee", Total: domain.NewAmount(750)},
	)

	res := Match(rule, inv)
	if !res.Matched {
		t.Fatalf("expected match, got %+v", res)
	}
	if len(res.MatchedLineItems) != 1 || res.MatchedLineItems[0].Description != "Big fee" {
		t.Fatalf("expected only the qualifying item, got %+v", res.MatchedLineItems)
	}

	rule.MinLineItemAmount = domain.NewAmount(1000)
	res = Match(rule, inv)
	if res.Matched {
		t.Fatalf("expected no match above all items")
	}
	if res.Reason != "no line items >= 1000" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestMatchNoKeywordMatch(t *testing.T) {
	rule := enabledRule("deice")
	inv := invoiceWithItems(domain.LineItem{Description: "Ramp fee", Total: domain.NewAmount(100)})

	res := Match(rule, inv)
	if res.Matched || res.Reason != "no keyword match" {
		t.Fatalf("expected keyword miss, got %+v", res)
	}
}

func TestMatchWithoutKeywordsUsesThresholdsOnly(t *testing.T) {
	rule := enabledRule()
	rule.MinTotal = domain.NewAmount(100)

	inv := invoiceWithItems()
	inv.Total = domain.NewAmount(250)

	res := Match(rule, inv)
	if !res.Matched {
		t.Fatalf("expected match, got %+v", res)
	}
	if res.Reason != "matched" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestLiveLineItemsIgnoresLifecycleGates(t *testing.T) {
	rule := enabledRule("fee")
	rule.Enabled = false
	rule.VendorNormalizedIn = []string{"atlantic"}
	rule.RequireChargedLineItems = true

	inv := invoiceWithItems(
		domain.LineItem{Description: "Waived fee", Total: domain.NewAmount(0)},
		domain.LineItem{Description: "Big fee", Total: domain.NewAmount(750)},
	)

	items := LiveLineItems(rule, inv)
	if len(items) != 1 || items[0].Description != "Big fee" {
		t.Fatalf("expected charged evidence despite disabled rule, got %+v", items)
	}

	rule.MinLineItemAmount = domain.NewAmount(1000)
	if items := LiveLineItems(rule, inv); len(items) != 0 {
		t.Fatalf("expected per-line minimum to apply, got %+v", items)
	}
}

func TestLiveLineItemsWithoutKeywords(t *testing.T) {
	rule := enabledRule()
	inv := invoiceWithItems(domain.LineItem{Description: "Ramp fee", Total: domain.NewAmount(100)})
	if items := LiveLineItems(rule, inv); items != nil {
		t.Fatalf("keywordless rules carry no line-item evidence, got %+v", items)
	}
}

func TestMatchReviewRequiredGate(t *testing.T) {
	rule := enabledRule("ramp")
	rule.RequireReviewRequired = true

	inv := invoiceWithItems(domain.LineItem{Description: "Ramp fee", Total: domain.NewAmount(100)})

	res := Match(rule, inv)
	if res.Matched || res.Reason != "invoice not review_required" {
		t.Fatalf("expected review gate miss, got %+v", res)
	}

	inv.ReviewRequired = true
	if res := Match(rule, inv); !res.Matched {
		t.Fatalf("expected match with review_required set, got %+v", res)
	}
}
