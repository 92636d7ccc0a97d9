package form

import (
	"net/http"

	"github.com/dukerupert/gasportal/internal/model"
)

const (
	MockToken     = "mock-token"
	MockUserID    = "1"
	MockFirstName = "John"
	MockLastName  = "Doe"
)

type LoginDraft struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

func LoginFromRequest(r *http.Request) LoginDraft {
	return LoginDraft{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}

func (d LoginDraft) Validate() error {
	return check(d)
}

// MockSession fabricates the token and user the portal logs in with when no
// authentication backend is wired. The user echoes the entered email.
func (d LoginDraft) MockSession() (string, model.User) {
	return MockToken, model.User{
		ID:        MockUserID,
		Email:     d.Email,
		FirstName: MockFirstName,
		LastName:  MockLastName,
	}
}
