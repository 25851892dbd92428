package domain

import "fmt"

// Identity is the opaque key identifying a network participant, analogous to
// a public account key. It is a domain primitive: parse once at the boundary,
// pass the typed value everywhere else.
type Identity string

// ParseIdentity validates and returns an Identity.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return "", fmt.Errorf("identity cannot be empty")
	}
	return Identity(s), nil
}

// String returns the string representation of the identity.
func (i Identity) String() string {
	return string(i)
}

// IsNil returns true if the identity is empty.
func (i Identity) IsNil() bool {
	return i == ""
}
