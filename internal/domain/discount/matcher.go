package discount

import (
	"slices"

	"github.com/xenking/storefront-promo/internal/domain/order"
)

// ScopeMatcher matches line items against a rule's product and category
// scope. A rule with an empty scope matches every line item.
type ScopeMatcher struct{}

var _ Matcher = ScopeMatcher{}

// Matches reports whether the line item falls within the rule's scope.
func (ScopeMatcher) Matches(item *order.LineItem, rule *Rule) bool {
	if len(rule.ProductIDs) == 0 && len(rule.Categories) == 0 {
		return true
	}
	if slices.Contains(rule.ProductIDs, item.ProductID) {
		return true
	}
	return slices.Contains(rule.Categories, item.Category)
}
