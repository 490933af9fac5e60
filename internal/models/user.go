package models

// User is a registered account. PasswordHash is a 20-character salt prefix
// followed by the base64 SHA-256 of password+salt; see internal/auth.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
