package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaRate             `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlRate        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaRate holds Jina Reader pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// FirecrawlRate holds Firecrawl pricing and the credits charged per operation.
type FirecrawlRate struct {
	PlanMonthly     float64            `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64            `yaml:"credits_included" mapstructure:"credits_included"`
	OpCredits       map[string]float64 `yaml:"op_credits" mapstructure:"op_credits"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rates returns the configured rate table.
func (c *Calculator) Rates() Rates {
	return c.rates
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Jina computes the cost for Jina Reader token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// CreditPrice returns the dollar price of one research credit.
func (c *Calculator) CreditPrice() float64 {
	if c.rates.Firecrawl.CreditsIncluded <= 0 {
		return 0
	}
	return c.rates.Firecrawl.PlanMonthly / c.rates.Firecrawl.CreditsIncluded
}

// Credits returns the dollar cost of n research credits.
func (c *Calculator) Credits(n float64) float64 {
	return n * c.CreditPrice()
}

// OpCredits returns the credits charged for one unit of a research operation.
// Unknown operations cost one credit.
func (c *Calculator) OpCredits(op string) float64 {
	if v, ok := c.rates.Firecrawl.OpCredits[op]; ok {
		return v
	}
	return 1
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Jina: JinaRate{PerMTok: 0.02},
		Firecrawl: FirecrawlRate{
			PlanMonthly:     19.00,
			CreditsIncluded: 3000,
			OpCredits: map[string]float64{
				"search":  2,
				"map":     1,
				"extract": 1,
				"crawl":   1,
			},
		},
	}
}

// LoadRates reads a YAML rate table. Providers missing from the file keep
// their default rates.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "cost: read rates %s", path)
	}

	var file Rates
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rates{}, eris.Wrapf(err, "cost: parse rates %s", path)
	}

	rates := DefaultRates()
	for name, r := range file.Anthropic {
		rates.Anthropic[name] = r
	}
	if file.Jina.PerMTok > 0 {
		rates.Jina = file.Jina
	}
	if file.Firecrawl.CreditsIncluded > 0 {
		rates.Firecrawl.PlanMonthly = file.Firecrawl.PlanMonthly
		rates.Firecrawl.CreditsIncluded = file.Firecrawl.CreditsIncluded
	}
	for op, n := range file.Firecrawl.OpCredits {
		rates.Firecrawl.OpCredits[op] = n
	}
	return rates, nil
}
