package core

import "strings"

// Personal budget labels.
const (
	CategoryFood           = "Food & Groceries"
	CategoryTransportation = "Transportation"
	CategoryShopping       = "Shopping"
	CategoryEntertainment  = "Entertainment"
	CategoryUtilities      = "Utilities"
	CategoryHousing        = "Housing"
	CategoryOther          = "Other"
)

// Business budget labels.
const (
	CategoryOffice       = "Office & Supplies"
	CategoryTravel       = "Travel & Entertainment"
	CategoryMarketing    = "Marketing"
	CategoryRent         = "Rent & Leases"
	CategoryInsurance    = "Insurance"
	CategoryProfessional = "Professional Services"
	CategorySoftware     = "Software & Subscriptions"
	CategoryVehicle      = "Vehicle Expenses"
	CategoryBusiness     = "Business Expenses"
	CategoryIncome       = "Business Income"
)

// Rule maps any of its keywords to a label.
type Rule struct {
	Label    string
	Keywords []string
}

// Taxonomy is an ordered rule list; the first rule with a keyword contained
// in the text wins.
type Taxonomy struct {
	Name     string
	Rules    []Rule
	Fallback string
}

var PersonalTaxonomy = &Taxonomy{
	Name: "personal",
	Rules: []Rule{
		{CategoryFood, []string{"grocery", "food", "restaurant"}},
		{CategoryTransportation, []string{"gas", "fuel", "exxon", "shell"}},
		{CategoryShopping, []string{"amazon", "target", "walmart"}},
		{CategoryEntertainment, []string{"netflix", "spotify", "subscription"}},
		{CategoryUtilities, []string{"electric", "water", "internet", "phone"}},
		{CategoryHousing, []string{"rent", "mortgage"}},
	},
	Fallback: CategoryOther,
}

var BusinessTaxonomy = &Taxonomy{
	Name: "business",
	Rules: []Rule{
		{CategoryOffice, []string{"office", "supplies"}},
		{CategoryTravel, []string{"travel", "meals", "entertainment"}},
		{CategoryMarketing, []string{"advertising", "marketing"}},
		{CategoryUtilities, []string{"utilities", "phone", "internet"}},
		{CategoryRent, []string{"rent", "lease"}},
		{CategoryInsurance, []string{"insurance"}},
		{CategoryProfessional, []string{"professional", "legal"}},
		{CategorySoftware, []string{"software", "subscriptions"}},
		{CategoryVehicle, []string{"vehicle", "auto", "gas"}},
	},
	Fallback: CategoryBusiness,
}

// Categorize returns the label of the first matching rule, or the fallback.
func (t *Taxonomy) Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range t.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Label
			}
		}
	}
	return t.Fallback
}

// RawTransaction is provider data that has not been categorized yet.
// MatchText is the text the taxonomy is applied to: the description for
// card transactions, the expense account name for bookkeeping lines.
type RawTransaction struct {
	Transaction
	Taxonomy  *Taxonomy
	MatchText string
}

// Categorized returns the transaction labelled by its taxonomy. A nil
// taxonomy means the personal one.
func (r RawTransaction) Categorized() Transaction {
	tx := r.Transaction
	t := r.Taxonomy
	if t == nil {
		t = PersonalTaxonomy
	}
	tx.Category = t.Categorize(r.MatchText)
	return tx
}

// Categorize applies the personal taxonomy to a description.
func Categorize(description string) string {
	return PersonalTaxonomy.Categorize(description)
}

// CategorizeBusinessAccount applies the business taxonomy to an account name.
func CategorizeBusinessAccount(accountName string) string {
	return BusinessTaxonomy.Categorize(accountName)
}
