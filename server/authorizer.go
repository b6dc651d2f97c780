package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/Shyp/rest"
)

// A Role determines which part of the API a caller may use. The identity
// provider in front of this service has already verified who the caller is;
// this layer only trusts and enforces the role it is handed.
type Role string

const RoleAdmin = Role("admin")
const RolePlacementDirector = Role("placement_director")
const RolePlacementStaff = Role("placement_staff")
const RoleHOD = Role("hod")
const RoleStudent = Role("student")

// Staff reports whether the role may manage jobs and read applications and
// analytics.
func (r Role) Staff() bool {
	switch r {
	case RoleAdmin, RolePlacementDirector, RolePlacementStaff, RoleHOD:
		return true
	}
	return false
}

// A Caller is an authenticated API user. For students, ID is the student's
// id in the directory; students can only act on their own records.
type Caller struct {
	ID   string
	Role Role
}

var DefaultAuthorizer = NewSharedSecretAuthorizer()

// AddUser tells the DefaultAuthorizer that a given user and password is
// allowed to access the API with the given role.
func AddUser(user string, password string, role Role) {
	DefaultAuthorizer.AddUser(user, password, role)
}

// The Authorizer interface can be used to authenticate a given user and
// token and resolve their role.
type Authorizer interface {
	// Authorize returns the caller if the user and token are allowed to
	// access the API, and a rest.Error otherwise. The rest.Error will be
	// returned as the body of a 401 HTTP response.
	Authorize(user string, token string) (*Caller, *rest.Error)
}

type allowedUser struct {
	password string
	role     Role
}

// SharedSecretAuthorizer uses an in-memory map of usernames and passwords to
// authenticate incoming requests.
type SharedSecretAuthorizer struct {
	allowedUsers map[string]allowedUser
	mu           sync.RWMutex
}

// NewSharedSecretAuthorizer creates a SharedSecretAuthorizer ready for use.
func NewSharedSecretAuthorizer() *SharedSecretAuthorizer {
	return &SharedSecretAuthorizer{
		allowedUsers: make(map[string]allowedUser),
	}
}

// AddUser authorizes a given user and password to access the API with the
// given role.
func (ssa *SharedSecretAuthorizer) AddUser(userId string, password string, role Role) {
	ssa.mu.Lock()
	defer ssa.mu.Unlock()
	ssa.allowedUsers[userId] = allowedUser{password: password, role: role}
}

// Authorize returns the caller if the userId and token have been added to c,
// and a rest.Error if they are not allowed to access the API.
func (c *SharedSecretAuthorizer) Authorize(userId string, token string) (*Caller, *rest.Error) {
	c.mu.RLock()
	u, ok := c.allowedUsers[userId]
	c.mu.RUnlock()
	if !ok {
		if userId == "" {
			return nil, &rest.Error{
				Title: "No authentication provided",
				ID:    "missing_authentication",
			}
		}
		return nil, &rest.Error{
			Title: "Username or password are invalid. Please double check your credentials",
			ID:    "forbidden",
		}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(u.password)) != 1 {
		return nil, &rest.Error{
			Title: fmt.Sprintf("Incorrect password for user %s", userId),
			ID:    "incorrect_password",
		}
	}
	return &Caller{ID: userId, Role: u.role}, nil
}

// StaticAuthorizer resolves every request to the same caller, regardless of
// credentials. Use it in tests to act as a fixed student or staff member.
type StaticAuthorizer struct {
	Caller Caller
}

func (s *StaticAuthorizer) Authorize(userId string, token string) (*Caller, *rest.Error) {
	c := s.Caller
	return &c, nil
}

// forbiddenAuthorizer always denies access.
type forbiddenAuthorizer struct{}

func (f *forbiddenAuthorizer) Authorize(userId string, token string) (*Caller, *rest.Error) {
	return nil, &rest.Error{
		Title: "Invalid Access Token",
		ID:    "forbidden_api",
	}
}

// handleAuthorizeError writes a non-200 authorization result to the
// response.
func handleAuthorizeError(w http.ResponseWriter, r *http.Request, err *rest.Error) {
	if err.ID == "forbidden_api" || err.ID == "missing_authentication" {
		err.Status = 401
		authenticate(w, err)
		return
	}
	if err.ID == "incorrect_password" || err.ID == "forbidden" {
		forbidden(w, err)
		return
	}
	if err.Status == http.StatusInternalServerError || err.ID == "server_error" {
		writeServerError(w, r, err)
		return
	}
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(err)
}
