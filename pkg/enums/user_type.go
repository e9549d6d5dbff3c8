package enums

import "fmt"

// UserType separates buyers from shop (partner) accounts.
type UserType string

const (
	UserTypeBuyer UserType = "buyer"
	UserTypeShop  UserType = "shop"
)

var validUserTypes = []UserType{
	UserTypeBuyer,
	UserTypeShop,
}

// String implements fmt.Stringer.
func (t UserType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known UserType.
func (t UserType) IsValid() bool {
	for _, candidate := range validUserTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseUserType converts raw input into a UserType.
func ParseUserType(value string) (UserType, error) {
	for _, candidate := range validUserTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user type %q", value)
}
