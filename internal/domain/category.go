package domain

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Category is one member of the closed spend/income vocabulary. Every
// transaction ends up with exactly one of these after enrichment; free-form
// classifier output is funneled through ResolveCategory so arbitrary strings
// never reach the workbook.
type Category string

const (
	CategoryAchu                  Category = "Achu"
	CategoryAishu                 Category = "Aishu"
	CategoryAmma                  Category = "Amma"
	CategoryBank                  Category = "Bank"
	CategoryBudget                Category = "Budget"
	CategoryCar                   Category = "Car"
	CategoryCashback              Category = "Cashback"
	CategoryChristmas             Category = "Christmas"
	CategoryCook                  Category = "Cook"
	CategoryCourier               Category = "Courier"
	CategoryDress                 Category = "Dress"
	CategoryEducation             Category = "Education"
	CategoryElectricity           Category = "Electricity"
	CategoryEntertainment         Category = "Entertainment"
	CategoryFaith                 Category = "Faith"
	CategoryFamily                Category = "Family"
	CategoryFood                  Category = "Food"
	CategoryFuel                  Category = "Fuel"
	CategoryGift                  Category = "Gift"
	CategoryGrocery               Category = "Grocery"
	CategoryGym                   Category = "Gym"
	CategoryHousehold             Category = "Household"
	CategoryIncome                Category = "Income"
	CategoryIncomeTax             Category = "Income Tax"
	CategoryInsurance             Category = "Insurance"
	CategoryInterest              Category = "Interest"
	CategoryInternationalTrip     Category = "International Trip"
	CategoryInternet              Category = "Internet"
	CategoryInvestment            Category = "Investment"
	CategoryKitchen               Category = "Kitchen"
	CategoryMaid                  Category = "Maid"
	CategoryMedical               Category = "Medical"
	CategoryPayment               Category = "Payment"
	CategoryPetrol                Category = "Petrol"
	CategoryPhilanthropy          Category = "Philanthropy"
	CategoryPhone                 Category = "Phone"
	CategoryProcessedTransactions Category = "Processed Transactions"
	CategoryProfession            Category = "Profession"
	CategoryRefund                Category = "Refund"
	CategoryRent                  Category = "Rent"
	CategorySalary                Category = "Salary"
	CategorySale                  Category = "Sale"
	CategorySalon                 Category = "Salon"
	CategoryScooter               Category = "Scooter"
	CategoryShopping              Category = "Shopping"
	CategorySoftware              Category = "Software"
	CategorySubscription          Category = "Subscription"
	CategoryTax                   Category = "Tax"
	CategoryTransfer              Category = "Transfer"
	CategoryTransportation        Category = "Transportation"
	CategoryTravel                Category = "Travel"
	CategoryUncategorized         Category = "Uncategorized"
	CategoryValueAdd              Category = "Value Add"
	CategoryWater                 Category = "Water"
	CategoryWedding               Category = "Wedding"
)

// DefaultCategory is the designated fallback for anything that cannot be
// resolved to a known member.
const DefaultCategory = CategoryUncategorized

var allCategories = []Category{
	CategoryAchu, CategoryAishu, CategoryAmma, CategoryBank, CategoryBudget,
	CategoryCar, CategoryCashback, CategoryChristmas, CategoryCook,
	CategoryCourier, CategoryDress, CategoryEducation, CategoryElectricity,
	CategoryEntertainment, CategoryFaith, CategoryFamily, CategoryFood,
	CategoryFuel, CategoryGift, CategoryGrocery, CategoryGym,
	CategoryHousehold, CategoryIncome, CategoryIncomeTax, CategoryInsurance,
	CategoryInterest, CategoryInternationalTrip, CategoryInternet,
	CategoryInvestment, CategoryKitchen, CategoryMaid, CategoryMedical,
	CategoryPayment, CategoryPetrol, CategoryPhilanthropy, CategoryPhone,
	CategoryProcessedTransactions, CategoryProfession, CategoryRefund,
	CategoryRent, CategorySalary, CategorySale, CategorySalon,
	CategoryScooter, CategoryShopping, CategorySoftware,
	CategorySubscription, CategoryTax, CategoryTransfer,
	CategoryTransportation, CategoryTravel, CategoryUncategorized,
	CategoryValueAdd, CategoryWater, CategoryWedding,
}

// categoryByKey indexes members by their normalized canonical key
// (upper case, spaces replaced with underscores).
var categoryByKey = func() map[string]Category {
	m := make(map[string]Category, len(allCategories))
	for _, c := range allCategories {
		m[normalizeCategoryKey(string(c))] = c
	}
	return m
}()

// synonyms canonicalizes known statement-side variations and typos before
// the normal lookup runs.
var synonyms = map[string]string{
	"ENTERTAINTMENT": "ENTERTAINMENT",
	"BODY":           "GYM",
	"HOUSE":          "HOUSEHOLD",
}

func normalizeCategoryKey(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_")
}

// ResolveCategory maps a free-form string onto the closed vocabulary.
// It never fails: canonical-key match first, then a case-insensitive match
// on the display value, then the fallback. A fallback hit is logged so the
// miss can be audited later.
func ResolveCategory(raw string) Category {
	key := normalizeCategoryKey(raw)
	if canonical, ok := synonyms[key]; ok {
		key = canonical
	}
	if c, ok := categoryByKey[key]; ok {
		return c
	}
	// Second chance: compare against display values with original spacing.
	trimmed := strings.TrimSpace(raw)
	for _, c := range allCategories {
		if strings.EqualFold(string(c), trimmed) {
			return c
		}
	}
	log.Warn().Str("raw", raw).Msg("Could not map string to a known category, falling back to Uncategorized")
	return DefaultCategory
}

// IsValid reports whether c is a member of the vocabulary.
func (c Category) IsValid() bool {
	_, ok := categoryByKey[normalizeCategoryKey(string(c))]
	return ok
}

// CategoryValues returns the sorted display values of the whole vocabulary.
func CategoryValues() []string {
	vals := make([]string, 0, len(allCategories))
	for _, c := range allCategories {
		vals = append(vals, string(c))
	}
	sort.Strings(vals)
	return vals
}

// CategoryValidationValues returns the sorted display values offered in the
// workbook's category dropdown: the full vocabulary minus the fallback.
func CategoryValidationValues() []string {
	vals := make([]string, 0, len(allCategories)-1)
	for _, c := range allCategories {
		if c == DefaultCategory {
			continue
		}
		vals = append(vals, string(c))
	}
	sort.Strings(vals)
	return vals
}
