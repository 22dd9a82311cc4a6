package domain

import "time"

// User is an authenticated account.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoURL     string
	PasswordHash []byte
	CreatedAt    time.Time
}
