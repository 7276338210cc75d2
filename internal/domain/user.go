package domain

import (
	"strings"
	"time"
)

const (
	accountSIDPrefix = "AC"
	accountSIDLen    = 34
	authTokenLen     = 32
)

// Credential is a validated provider account binding. Exactly one pair
// per user; never shared across users.
type Credential struct {
	AccountSID string    `json:"account_sid" db:"account_sid"`
	AuthToken  string    `json:"auth_token" db:"auth_token"`
	UpdatedAt  time.Time `json:"updated_at" db:"cred_updated_at"`
}

// WellFormed reports whether the pair matches the provider's fixed
// prefix-and-length convention. A failing pair must never reach the network.
func (c Credential) WellFormed() bool {
	if len(c.AccountSID) != accountSIDLen || !strings.HasPrefix(c.AccountSID, accountSIDPrefix) {
		return false
	}
	return len(c.AuthToken) == authTokenLen
}

// User is a chat account record. Created on first contact, mutated on
// credential binding, number acquisition/release, and approval; never
// deleted.
type User struct {
	ID           int64       `json:"id"`
	DisplayName  string      `json:"display_name"`
	Approved     bool        `json:"approved"`
	Credential   *Credential `json:"credential,omitempty"`
	Numbers      []string    `json:"numbers,omitempty"`
	JoinedAt     time.Time   `json:"joined_at"`
	LastActiveAt time.Time   `json:"last_active_at"`
}

// HasCredential reports whether a provider credential is bound.
func (u *User) HasCredential() bool {
	return u != nil && u.Credential != nil
}

// Owns reports whether the number is in the user's owned set.
func (u *User) Owns(number string) bool {
	if u == nil {
		return false
	}
	for _, n := range u.Numbers {
		if n == number {
			return true
		}
	}
	return false
}

// AddNumber appends the number to the owned set, keeping per-user uniqueness.
func (u *User) AddNumber(number string) {
	if u.Owns(number) {
		return
	}
	u.Numbers = append(u.Numbers, number)
}

// RemoveNumber drops the number from the owned set, preserving order.
func (u *User) RemoveNumber(number string) {
	for i, n := range u.Numbers {
		if n == number {
			u.Numbers = append(u.Numbers[:i], u.Numbers[i+1:]...)
			return
		}
	}
}

// NumberRecord is the global index entry for a provisioned number. The
// phone number string itself is the identity key.
type NumberRecord struct {
	Owner      int64     `json:"owner"`
	AssignedAt time.Time `json:"assigned_at"`
}
