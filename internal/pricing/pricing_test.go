package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		provider     string
		model        string
		inputTokens  int
		outputTokens int
		wantInput    float64
		wantOutput   float64
		wantTotal    float64
	}{
		{
			name:         "gemini 2.5 flash small call",
			provider:     "gemini",
			model:        "gemini-2.5-flash",
			inputTokens:  500,
			outputTokens: 150,
			wantInput:    0.000175,
			wantOutput:   0.0001575,
			wantTotal:    0.0003325,
		},
		{
			name:         "gpt-4o round numbers",
			provider:     "openai",
			model:        "gpt-4o",
			inputTokens:  1_000_000,
			outputTokens: 1_000_000,
			wantInput:    2.50,
			wantOutput:   10.00,
			wantTotal:    12.50,
		},
		{
			name:         "zero tokens is a valid zero-cost call",
			provider:     "gemini",
			model:        "gemini-2.5-flash",
			inputTokens:  0,
			outputTokens: 0,
			wantInput:    0,
			wantOutput:   0,
			wantTotal:    0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cost, err := Calculate(tc.provider, tc.model, tc.inputTokens, tc.outputTokens)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if !closeTo(cost.InputCost, tc.wantInput) {
				t.Errorf("InputCost = %v, want %v", cost.InputCost, tc.wantInput)
			}
			if !closeTo(cost.OutputCost, tc.wantOutput) {
				t.Errorf("OutputCost = %v, want %v", cost.OutputCost, tc.wantOutput)
			}
			if !closeTo(cost.TotalCost, tc.wantTotal) {
				t.Errorf("TotalCost = %v, want %v", cost.TotalCost, tc.wantTotal)
			}
		})
	}
}

func TestCalculate_UnknownModel(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
	}{
		{"unknown provider", "nonexistent", "gpt-4o"},
		{"unknown model", "openai", "gpt-99"},
		{"empty pair", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cost, err := Calculate(tc.provider, tc.model, 100, 100)
			if cost != nil {
				t.Errorf("Calculate() = %+v, want nil", cost)
			}
			if !errors.Is(err, ErrUnknownModel) {
				t.Errorf("Calculate() error = %v, want ErrUnknownModel", err)
			}
		})
	}
}

func TestCalculate_TotalIsSumOfParts(t *testing.T) {
	// The invariant holds for every entry in the table, not just the
	// models the tests above name.
	for _, provider := range Providers() {
		for model := range table[provider] {
			cost, err := Calculate(provider, model, 12345, 6789)
			if err != nil {
				t.Fatalf("Calculate(%s, %s) error = %v", provider, model, err)
			}
			if !closeTo(cost.TotalCost, cost.InputCost+cost.OutputCost) {
				t.Errorf("%s/%s: TotalCost %v != InputCost+OutputCost %v",
					provider, model, cost.TotalCost, cost.InputCost+cost.OutputCost)
			}
		}
	}
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup("gemini", "gemini-2.5-flash"); !ok {
		t.Error("Lookup(gemini, gemini-2.5-flash) = false, want true")
	}
	if _, ok := Lookup("gemini", "no-such-model"); ok {
		t.Error("Lookup(gemini, no-such-model) = true, want false")
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-12
}
