package ledger

// TradeType is a single entry of a taxonomy group. User defined entries
// have no code.
type TradeType struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// TaxonomyGroup lists the trade types of one transaction kind
type TaxonomyGroup struct {
	Transaction Transaction `json:"transaction"`
	TradeTypes  []TradeType `json:"trade_types"`
}

var taxonomy = []TaxonomyGroup{
	{
		Transaction: Income,
		TradeTypes: []TradeType{
			{Code: "INCOME_SALARY", Name: "salary"},
			{Code: "INCOME_PIN", Name: "pin money"},
			{Code: "INCOME_CARRY_OVER", Name: "carry over"},
			{Code: "INCOME_WITHDRAWAL", Name: "withdrawal"},
			{Code: "INCOME_ETC", Name: "etc"},
		},
	},
	{
		Transaction: Spending,
		TradeTypes: []TradeType{
			{Code: "SPENDING_FOOD", Name: "food"},
			{Code: "SPENDING_TRANSPORTATION", Name: "transportation"},
			{Code: "SPENDING_CLTURE", Name: "culture"},
			{Code: "SPENDING_BUEATY", Name: "beauty"},
			{Code: "SPENDING_DRESS", Name: "dress"},
			{Code: "SPENDING_ADU", Name: "education"},
			{Code: "SPENDING_MOBILE", Name: "mobile"},
			{Code: "SPENDING_SAVE", Name: "savings"},
		},
	},
}

// Taxonomy returns a copy of the fixed trade type taxonomy
func Taxonomy() []TaxonomyGroup {
	out := make([]TaxonomyGroup, len(taxonomy))
	for i, g := range taxonomy {
		out[i] = TaxonomyGroup{
			Transaction: g.Transaction,
			TradeTypes:  append([]TradeType(nil), g.TradeTypes...),
		}
	}
	return out
}

// TransactionOf returns the transaction kind a trade type code belongs to
func TransactionOf(code string) (Transaction, bool) {
	for _, g := range taxonomy {
		for _, tt := range g.TradeTypes {
			if tt.Code == code {
				return g.Transaction, true
			}
		}
	}
	return "", false
}

// MergeTradeTypes appends the distinct user entered trade types to the
// taxonomy, skipping blanks and values already listed for the same kind.
func MergeTradeTypes(entered map[Transaction][]string) []TaxonomyGroup {
	groups := Taxonomy()
	for i := range groups {
		seen := map[string]bool{}
		for _, tt := range groups[i].TradeTypes {
			seen[tt.Code] = true
			seen[tt.Name] = true
		}
		for _, value := range entered[groups[i].Transaction] {
			if value == "" || seen[value] {
				continue
			}
			seen[value] = true
			groups[i].TradeTypes = append(groups[i].TradeTypes, TradeType{Name: value})
		}
	}
	return groups
}
