package fees

import (
	"testing"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

func TestResolveProbesAmountFieldsInOrder(t *testing.T) {
	item := domain.LineItem{
		Description: "Ramp Fee",
		AmountVal:   domain.NewAmount(80),
		LineTotal:   domain.NewAmount(99),
	}

	fee := Resolve([]domain.LineItem{item}, "", nil, "Ramp Fee", false)
	if fee.Name != "Ramp Fee" {
		t.Fatalf("unexpected fee name %q", fee.Name)
	}
	if v, ok := fee.Amount.Float(); !ok || v != 80 {
		t.Fatalf("expected amount from first populated candidate, got %v valid=%v", v, ok)
	}
}

func TestResolveLineItemLabelOverridesRuleName(t *testing.T) {
	item := domain.LineItem{
		Name:  "International Handling",
		Total: domain.NewAmount(250),
	}

	fee := Resolve([]domain.LineItem{item}, "Handling Rule", nil, "Handling Rule", false)
	if fee.Name != "International Handling" {
		t.Fatalf("expected line item label, got %q", fee.Name)
	}
}

func TestResolveSynthesizesOnlyWhenChargedEvidenceNotRequired(t *testing.T) {
	item := domain.LineItem{
		Description: "Ramp Fee",
		Quantity:    domain.NewAmount(2),
		UnitPrice:   domain.NewAmount(49.995),
	}

	fee := Resolve([]domain.LineItem{item}, "", nil, "Ramp", false)
	if v, ok := fee.Amount.Float(); !ok || v != 99.99 {
		t.Fatalf("expected synthesized 99.99, got %v valid=%v", v, ok)
	}

	// The same item under a charged-only rule must not resurrect a fee that
	// was never billed.
	fee = Resolve([]domain.LineItem{item}, "", nil, "Ramp", true)
	if fee.Amount.Valid() {
		t.Fatalf("expected no synthesized amount under charged-only, got %+v", fee.Amount)
	}
	if fee.Actionable() {
		t.Fatalf("expected non-actionable fee")
	}
}

func TestResolveFallsBackToInvoiceSubFee(t *testing.T) {
	inv := &domain.Invoice{
		HandlingFee: domain.NewAmount(175),
	}

	fee := Resolve(nil, "", inv, "High handling fee", false)
	if v, ok := fee.Amount.Float(); !ok || v != 175 {
		t.Fatalf("expected invoice handling_fee, got %v valid=%v", v, ok)
	}
	if fee.Name != "High handling fee" {
		t.Fatalf("unexpected fee name %q", fee.Name)
	}
}

func TestResolveDefaultsNameToFee(t *testing.T) {
	fee := Resolve(nil, "", nil, "", false)
	if fee.Name != "Fee" {
		t.Fatalf("expected default name, got %q", fee.Name)
	}
	if fee.Actionable() {
		t.Fatalf("expected non-actionable fee without amount")
	}
}

func TestFeeActionableRequiresPositiveAmount(t *testing.T) {
	zero := domain.Fee{Name: "Ramp Fee", Amount: domain.NewAmount(0)}
	if zero.Actionable() {
		t.Fatalf("zero fee must not be actionable")
	}
	negative := domain.Fee{Name: "Credit", Amount: domain.NewAmount(-20)}
	if negative.Actionable() {
		t.Fatalf("negative fee must not be actionable")
	}
	positive := domain.Fee{Name: "Ramp Fee", Amount: domain.NewAmount(125)}
	if !positive.Actionable() {
		t.Fatalf("positive named fee must be actionable")
	}
}
