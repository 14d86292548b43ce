package domain

import "time"

// User represents an authenticated account within the platform.
type User struct {
	ID           string
	Email        string
	PhoneNumber  string
	PasswordHash string
	FirstName    string
	LastName     string
	Latitude     *float64
	Longitude    *float64
	IPAddress    string
	CountryCode  string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
