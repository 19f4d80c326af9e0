// Package auth answers the credential prompts issued while authenticating
// against a management endpoint.
package auth

import (
	"fmt"
	"strings"
)

// Callback is a single credential prompt.
type Callback interface {
	Prompt() string
}

// RealmCallback asks for the authentication realm. DefaultText carries the
// realm offered by the server.
type RealmCallback struct {
	PromptText  string
	DefaultText string
	Text        string
}

// Prompt returns the prompt text.
func (c *RealmCallback) Prompt() string { return c.PromptText }

// NameCallback asks for the user name.
type NameCallback struct {
	PromptText string
	Name       string
}

// Prompt returns the prompt text.
func (c *NameCallback) Prompt() string { return c.PromptText }

// PasswordCallback asks for the password.
type PasswordCallback struct {
	PromptText string
	Password   []byte
}

// Prompt returns the prompt text.
func (c *PasswordCallback) Prompt() string { return c.PromptText }

// UnsupportedCallbackError is returned for prompts the handler cannot answer.
type UnsupportedCallbackError struct {
	Callback Callback
}

func (e *UnsupportedCallbackError) Error() string {
	return fmt.Sprintf("unsupported authentication callback %T", e.Callback)
}

// Handler supplies a fixed user name, password and optional realm.
type Handler struct {
	username string
	password string
	realm    string
}

// NewHandler creates a callback handler. An empty realm defers to the realm
// offered by the server.
func NewHandler(username, password, realm string) *Handler {
	return &Handler{
		username: username,
		password: password,
		realm:    realm,
	}
}

// HasCredentials reports whether a user name is configured.
func (h *Handler) HasCredentials() bool {
	return h.username != ""
}

// Handle fills in every callback, failing on the first unsupported one.
func (h *Handler) Handle(callbacks ...Callback) error {
	for _, cb := range callbacks {
		switch c := cb.(type) {
		case *RealmCallback:
			if strings.TrimSpace(h.realm) != "" {
				c.Text = h.realm
			} else {
				c.Text = c.DefaultText
			}
		case *NameCallback:
			c.Name = h.username
		case *PasswordCallback:
			c.Password = []byte(h.password)
		default:
			return &UnsupportedCallbackError{Callback: cb}
		}
	}
	return nil
}

// Credentials resolves realm, user name and password in one call, given the
// realm offered by the server.
func (h *Handler) Credentials(serverRealm string) (realm, username, password string, err error) {
	realmCB := &RealmCallback{PromptText: "realm", DefaultText: serverRealm}
	nameCB := &NameCallback{PromptText: "username"}
	passCB := &PasswordCallback{PromptText: "password"}

	if err := h.Handle(realmCB, nameCB, passCB); err != nil {
		return "", "", "", err
	}
	return realmCB.Text, nameCB.Name, string(passCB.Password), nil
}
