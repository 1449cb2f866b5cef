package models

import "time"

// User is the freelancer operating the account
type User struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	APIKeyHash   string        `json:"api_key_hash,omitempty"`
	APIKeyPrefix string        `json:"api_key_prefix,omitempty"`
	Brand        BrandSettings `json:"brand"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// BrandSettings holds the freelancer's branding used in emails
type BrandSettings struct {
	CompanyName    string `json:"company_name,omitempty"`
	Address        string `json:"address,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
}

// Public returns a copy without credential fields
func (u User) Public() User {
	u.APIKeyHash = ""
	return u
}
