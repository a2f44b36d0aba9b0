package models

import "slices"

// NormalizedDisclosedClaims is the format-agnostic claim bag built once per
// successful verification.
type NormalizedDisclosedClaims struct {
	GivenName         string          `json:"givenName,omitempty"`
	FamilyName        string          `json:"familyName,omitempty"`
	BirthDate         string          `json:"birthDate,omitempty"`
	BirthPlace        string          `json:"birthPlace,omitempty"`
	Nationalities     []string        `json:"nationalities,omitempty"`
	Address           string          `json:"address,omitempty"`
	DocumentNumber    string          `json:"documentNumber,omitempty"`
	IssuingCountry    string          `json:"issuingCountry,omitempty"`
	IssueDate         string          `json:"issueDate,omitempty"`
	ExpiryDate        string          `json:"expiryDate,omitempty"`
	DrivingPrivileges []string        `json:"drivingPrivileges,omitempty"`
	AgeEqualOrOver    map[string]bool `json:"ageEqualOrOver,omitempty"`
}

// IsEmpty reports whether no field was extracted.
func (c *NormalizedDisclosedClaims) IsEmpty() bool {
	return c == nil || (c.GivenName == "" && c.FamilyName == "" && c.BirthDate == "" &&
		c.BirthPlace == "" && len(c.Nationalities) == 0 && c.Address == "" &&
		c.DocumentNumber == "" && c.IssuingCountry == "" && c.IssueDate == "" &&
		c.ExpiryDate == "" && len(c.DrivingPrivileges) == 0 && len(c.AgeEqualOrOver) == 0)
}

// HasDrivingPrivilege reports whether category (uppercase) was disclosed.
func (c *NormalizedDisclosedClaims) HasDrivingPrivilege(category string) bool {
	return c != nil && slices.Contains(c.DrivingPrivileges, category)
}

// AgeOver returns the disclosed answer for a threshold and whether it was disclosed.
func (c *NormalizedDisclosedClaims) AgeOver(threshold string) (bool, bool) {
	if c == nil {
		return false, false
	}
	v, ok := c.AgeEqualOrOver[threshold]
	return v, ok
}
