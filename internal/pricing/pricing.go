package pricing

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is returned when a (provider, model) pair has no price
// table entry. Callers must treat this as a hard stop: a usage record
// whose cost cannot be resolved is never submitted.
var ErrUnknownModel = errors.New("unknown provider/model")

// PriceEntry holds USD prices per million tokens for one model.
type PriceEntry struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost is the result of pricing a single call.
type Cost struct {
	InputCost  float64 `json:"inputCost"`
	OutputCost float64 `json:"outputCost"`
	TotalCost  float64 `json:"totalCost"`
}

// table is the static price table. Prices are code-embedded: changing
// them means redeploying, there is no dynamic pricing store.
var table = map[string]map[string]PriceEntry{
	"gemini": {
		"gemini-2.5-flash": {InputPerMillion: 0.35, OutputPerMillion: 1.05},
		"gemini-2.5-pro":   {InputPerMillion: 1.25, OutputPerMillion: 10.00},
		"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	},
	"openai": {
		"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"o1":          {InputPerMillion: 15.00, OutputPerMillion: 60.00},
	},
	"claude": {
		"claude-sonnet-4": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-haiku-3.5": {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	},
	"deepseek": {
		"deepseek-chat":     {InputPerMillion: 0.27, OutputPerMillion: 1.10},
		"deepseek-reasoner": {InputPerMillion: 0.55, OutputPerMillion: 2.19},
	},
	"qwen": {
		"qwen-turbo": {InputPerMillion: 0.05, OutputPerMillion: 0.20},
		"qwen-plus":  {InputPerMillion: 0.40, OutputPerMillion: 1.20},
	},
}

// Lookup returns the price entry for a (provider, model) pair.
func Lookup(provider, model string) (PriceEntry, bool) {
	byModel, ok := table[provider]
	if !ok {
		return PriceEntry{}, false
	}
	entry, ok := byModel[model]
	return entry, ok
}

// Calculate prices a call from its token counts. Token counts are taken
// at face value; negative inputs are the caller's bug, not checked here.
func Calculate(provider, model string, inputTokens, outputTokens int) (*Cost, error) {
	entry, ok := Lookup(provider, model)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownModel, provider, model)
	}

	inputCost := float64(inputTokens) / 1_000_000 * entry.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * entry.OutputPerMillion

	return &Cost{
		InputCost:  inputCost,
		OutputCost: outputCost,
		TotalCost:  inputCost + outputCost,
	}, nil
}

// Providers returns the provider keys present in the price table.
func Providers() []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	return keys
}
