package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Persisted key names shared with the mobile app.
const (
	KeyFavoriteJobs = "favoriteJobs"
	KeyUserData     = "userData"
	KeyUserToken    = "userToken"
)

// UserProfile is the subset of the login payload the engine reads.
type UserProfile struct {
	LastName  string `json:"NOM,omitempty"`
	FirstName string `json:"PRENOM,omitempty"`
	Email     string `json:"EMAIL"`
}

// UserData is the value stored under KeyUserData.
// The login flow stores the profile nested under "userData"; a flat
// profile is accepted too.
type UserData struct {
	UserProfile
	Nested *UserProfile `json:"userData,omitempty"`
}

// Profile returns the effective profile, preferring the nested one.
func (u UserData) Profile() UserProfile {
	if u.Nested != nil && u.Nested.Email != "" {
		return *u.Nested
	}
	return u.UserProfile
}

// ParseUserData decodes a stored userData value.
func ParseUserData(raw string) (UserData, error) {
	var u UserData
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return UserData{}, fmt.Errorf("decode user data: %w", err)
	}
	if strings.TrimSpace(u.Profile().Email) == "" {
		return UserData{}, fmt.Errorf("decode user data: EMAIL missing")
	}
	return u, nil
}
