package enums

import "fmt"

// FulfillmentOption selects how a finished order reaches the customer.
type FulfillmentOption string

const (
	FulfillmentDelivery FulfillmentOption = "delivery"
	FulfillmentPickup   FulfillmentOption = "pickup"
)

var validFulfillmentOptions = []FulfillmentOption{
	FulfillmentDelivery,
	FulfillmentPickup,
}

// String implements fmt.Stringer.
func (f FulfillmentOption) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentOption.
func (f FulfillmentOption) IsValid() bool {
	for _, candidate := range validFulfillmentOptions {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFulfillmentOption converts raw input into a FulfillmentOption.
func ParseFulfillmentOption(value string) (FulfillmentOption, error) {
	for _, candidate := range validFulfillmentOptions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment option %q", value)
}
