package enums

import "fmt"

// SubjectKind tags the owner of a material consumption rate.
type SubjectKind string

const (
	SubjectProduct       SubjectKind = "product"
	SubjectUploadedAsset SubjectKind = "uploaded_asset"
)

// IsValid reports whether the value is a known SubjectKind.
func (k SubjectKind) IsValid() bool {
	return k == SubjectProduct || k == SubjectUploadedAsset
}

// ParseSubjectKind converts raw input into a SubjectKind.
func ParseSubjectKind(value string) (SubjectKind, error) {
	kind := SubjectKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid subject kind %q", value)
	}
	return kind, nil
}
