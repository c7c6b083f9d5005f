// Package fees picks the single fee a matched alert should report.
package fees

import (
	"strings"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

// Resolve applies a strict precedence order: the first matched line item's
// probed amount, then quantity × unit price synthesis (forbidden when
// chargedOnly is set — a rule demanding charged evidence must never fall back
// to a hypothetical computation that could resurrect a waived fee), then the
// invoice's named sub-fee column selected by a keyword in the rule name.
func Resolve(matched []domain.LineItem, fallbackName string, inv *domain.Invoice, ruleName string, chargedOnly bool) domain.Fee {
	name := fallbackName
	if name == "" {
		name = ruleName
	}
	if name == "" {
		name = "Fee"
	}

	var amount domain.Amount

	if len(matched) > 0 {
		li := matched[0]
		if label := li.Label(); label != "" {
			name = label
		}

		for _, candidate := range li.AmountCandidates() {
			if candidate.Positive() {
				amount = candidate
				break
			}
		}

		if !amount.Valid() && !chargedOnly {
			if synth, ok := li.SynthesizedAmount(); ok {
				amount = domain.NewAmount(synth)
			}
		}
	}

	if !amount.Valid() && inv != nil && ruleName != "" {
		rn := strings.ToLower(ruleName)
		switch {
		case strings.Contains(rn, "handling"):
			if inv.HandlingFee.Valid() {
				amount = inv.HandlingFee
				if strings.TrimSpace(name) == "" {
					name = "Handling Fee"
				}
			}
		case strings.Contains(rn, "service"):
			if inv.ServiceFee.Valid() {
				amount = inv.ServiceFee
				if strings.TrimSpace(name) == "" {
					name = "Service Fee"
				}
			}
		case strings.Contains(rn, "surcharge"):
			if inv.Surcharge.Valid() {
				amount = inv.Surcharge
				if strings.TrimSpace(name) == "" {
					name = "Surcharge"
				}
			}
		}
	}

	return domain.Fee{Name: name, Amount: amount}
}
