package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestInvoiceStatusDecodingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every code decodes to a ranked or terminal status", prop.ForAll(
		func(code uint8) bool {
			status := InvoiceStatusFromCode(code)
			rank := status.Rank()
			return rank >= 0 && rank <= 7
		},
		gen.UInt8(),
	))

	properties.Property("known codes decode distinctly", prop.ForAll(
		func(a, b uint8) bool {
			if a == b || a > 8 || b > 8 {
				return true
			}
			return InvoiceStatusFromCode(a) != InvoiceStatusFromCode(b)
		},
		gen.UInt8Range(0, 8),
		gen.UInt8Range(0, 8),
	))

	properties.TestingRun(t)
}

func TestSeverityWeightProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	severities := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

	properties.Property("weights are positive and strictly increasing", prop.ForAll(
		func(i int) bool {
			if severities[i].Weight() <= 0 {
				return false
			}
			if i > 0 && severities[i].Weight() <= severities[i-1].Weight() {
				return false
			}
			return true
		},
		gen.IntRange(0, len(severities)-1),
	))

	properties.TestingRun(t)
}
