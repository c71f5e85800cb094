package budget

import "github.com/aristath/whisper/internal/domain"

// TokenClass distinguishes the billable units on a metered call.
type TokenClass string

const (
	ClassOutput    TokenClass = "output"    // priced per million tokens
	ClassReasoning TokenClass = "reasoning" // priced per million tokens
	ClassSearch    TokenClass = "search"    // priced per request
)

// PriceKey addresses one line of the pricing table.
type PriceKey struct {
	Service string
	Model   string
	Class   TokenClass
}

// PriceTable maps billable units to dollar rates. Token classes carry a
// per-million-token rate, search a per-request rate. Rates come off the
// provider invoices, not the marketing pages.
type PriceTable map[PriceKey]domain.Money

// DefaultPriceTable returns the verified rates for the wired services.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		{"perplexity", "sonar", ClassOutput}:        domain.NewMoney(1.00),
		{"perplexity", "sonar", ClassReasoning}:     domain.NewMoney(5.00),
		{"perplexity", "sonar", ClassSearch}:        domain.NewMoney(0.005),
		{"perplexity", "sonar-pro", ClassOutput}:    domain.NewMoney(15.00),
		{"perplexity", "sonar-pro", ClassReasoning}: domain.NewMoney(15.00),
		{"perplexity", "sonar-pro", ClassSearch}:    domain.NewMoney(0.005),
	}
}

// Usage is the billable unit counts reported by one call.
type Usage struct {
	OutputTokens    int
	ReasoningTokens int
	SearchRequests  int
}

const maxTokenCount = 10_000_000

// Validate rejects negative or absurd counts before they reach the ledger.
func (u Usage) Validate() error {
	for _, n := range []int{u.OutputTokens, u.ReasoningTokens, u.SearchRequests} {
		if n < 0 || n > maxTokenCount {
			return domain.Errorf(domain.ErrInvalid, "budget.usage",
				"token count %d outside [0, %d]", n, maxTokenCount)
		}
	}
	return nil
}

const tokensPerUnit = 1_000_000

// Cost prices a call. Unknown {service, model} lines price at zero so a
// new model never silently drains the budget with a guessed rate; the
// caller logs the miss.
func (t PriceTable) Cost(service, model string, u Usage) domain.Money {
	cost := domain.NewMoney(0)
	if rate, ok := t[PriceKey{service, model, ClassOutput}]; ok {
		cost = cost.Add(rate.MulInt(int64(u.OutputTokens)).DivInt(tokensPerUnit))
	}
	if rate, ok := t[PriceKey{service, model, ClassReasoning}]; ok {
		cost = cost.Add(rate.MulInt(int64(u.ReasoningTokens)).DivInt(tokensPerUnit))
	}
	if rate, ok := t[PriceKey{service, model, ClassSearch}]; ok {
		cost = cost.Add(rate.MulInt(int64(u.SearchRequests)))
	}
	return cost
}

// Known reports whether the table carries any line for {service, model}.
func (t PriceTable) Known(service, model string) bool {
	for _, class := range []TokenClass{ClassOutput, ClassReasoning, ClassSearch} {
		if _, ok := t[PriceKey{service, model, class}]; ok {
			return true
		}
	}
	return false
}
