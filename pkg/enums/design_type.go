package enums

import "fmt"

// DesignType records where an order's print artwork came from.
type DesignType string

const (
	DesignTypeOwn          DesignType = "own-design"
	DesignTypeBusiness     DesignType = "business-design"
	DesignTypeAIGeneration DesignType = "ai-generation"
)

var validDesignTypes = []DesignType{
	DesignTypeOwn,
	DesignTypeBusiness,
	DesignTypeAIGeneration,
}

// String implements fmt.Stringer.
func (d DesignType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DesignType.
func (d DesignType) IsValid() bool {
	for _, candidate := range validDesignTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDesignType converts raw input into a DesignType.
func ParseDesignType(value string) (DesignType, error) {
	for _, candidate := range validDesignTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid design type %q", value)
}
