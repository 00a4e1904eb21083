package core

import "time"

type (
	// User is the account the remote backend is signed in as.
	User struct {
		Subject   string    `json:"subject"`
		Login     string    `json:"login"`
		Email     string    `json:"email,omitempty"`
		AvatarURL string    `json:"avatarUrl"`
		Name      string    `json:"name"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
)
