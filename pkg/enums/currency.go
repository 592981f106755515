package enums

import "strings"

// Currency is the ISO code used for order totals and provider charges.
type Currency string

const CurrencyPHP Currency = "PHP"

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is accepted by the storefront.
func (c Currency) IsValid() bool {
	return strings.EqualFold(string(c), string(CurrencyPHP))
}
