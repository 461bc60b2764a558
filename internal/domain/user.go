package domain

import "time"

const AnonymousUsername = "anon"

type User struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is whoever is on the other end of a request. The zero value is
// an anonymous visitor.
type Identity struct {
	UserID   uint
	Username string
}

func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != 0
}

func (i Identity) DisplayName() string {
	if !i.IsAuthenticated() || i.Username == "" {
		return AnonymousUsername
	}
	return i.Username
}
