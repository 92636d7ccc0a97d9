package model

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName returns "First Last", falling back to the email address.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

// AuthState is the session snapshot handed to templates and listeners.
// IsAuthenticated is true iff User is non-nil and Token is non-empty.
type AuthState struct {
	User            *User  `json:"user"`
	Token           string `json:"token"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}
