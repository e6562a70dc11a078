package catalog

import (
	"strings"

	"github.com/go-faster/errors"
)

// Family tags the two purchasable product families.
type Family string

const (
	// FamilyVerification covers identity verification PINs.
	FamilyVerification Family = "VERIFICATION"
	// FamilyEnrollment covers card enrollment, update, renewal and replacement PINs.
	FamilyEnrollment Family = "ENROLLMENT"
)

// Key identifies a purchasable service variant. It is a closed sum type:
// the only implementations are Verification and Enrollment, both comparable
// so a Key can be used as a map key.
type Key interface {
	Family() Family
	SKU() string
	String() string

	sealed()
}

// Verification is the Key variant for verification PINs.
type Verification struct {
	Variant string
}

// Family implements Key.
func (Verification) Family() Family { return FamilyVerification }

// SKU implements Key.
func (k Verification) SKU() string { return k.Variant }

func (k Verification) String() string { return string(FamilyVerification) + ":" + k.Variant }

func (Verification) sealed() {}

// Enrollment is the Key variant for enrollment PINs.
type Enrollment struct {
	Variant string
}

// Family implements Key.
func (Enrollment) Family() Family { return FamilyEnrollment }

// SKU implements Key.
func (k Enrollment) SKU() string { return k.Variant }

func (k Enrollment) String() string { return string(FamilyEnrollment) + ":" + k.Variant }

func (Enrollment) sealed() {}

// ErrInvalidKey is returned by ParseKey for an unknown family or empty SKU.
var ErrInvalidKey = errors.New("invalid service key")

// NewKey builds the Key variant for family. Family matching is
// case-insensitive.
func NewKey(family, sku string) (Key, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, errors.Wrap(ErrInvalidKey, "empty sku")
	}
	switch Family(strings.ToUpper(strings.TrimSpace(family))) {
	case FamilyVerification:
		return Verification{Variant: sku}, nil
	case FamilyEnrollment:
		return Enrollment{Variant: sku}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidKey, "unknown family %q", family)
	}
}

// ParseKey parses the "<FAMILY>:<SKU>" form produced by Key.String.
func ParseKey(s string) (Key, error) {
	family, sku, ok := strings.Cut(s, ":")
	if !ok {
		return nil, errors.Wrapf(ErrInvalidKey, "missing separator in %q", s)
	}
	return NewKey(family, sku)
}
