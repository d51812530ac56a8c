package commands

import (
	"net/http"

	"github.com/lanternchat/sdk-go/pkg/api/command"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	userLoginSpec       = command.Define[UserLogin](http.MethodPost, "user/@me", command.Unauthorized())
	userLogoutSpec      = command.Define[UserLogout](http.MethodDelete, "user/@me")
	getSelfSpec         = command.Define[GetSelf](http.MethodGet, "user/@me")
	getUserSpec         = command.Define[GetUser](http.MethodGet, "user/{user_id}")
	updateUserPrefsSpec = command.Define[UpdateUserPrefs](http.MethodPatch, "user/@me/prefs")
)

// UserLoginBody is the login form.
type UserLoginBody struct {
	Email    string `json:"email" cbor:"email"`
	Password string `json:"password" cbor:"password"`
	TOTP     string `json:"totp,omitempty" cbor:"totp,omitempty"`
}

// UserLogin exchanges credentials for a session token.
type UserLogin struct {
	command.Returns[models.Session]
	Form UserLoginBody
}

func (UserLogin) Spec() *command.Spec   { return userLoginSpec }
func (UserLogin) PathValues() []string { return nil }
func (c UserLogin) Body() any          { return &c.Form }

// UserLogout ends the current session.
type UserLogout struct {
	command.Returns[command.Empty]
}

func (UserLogout) Spec() *command.Spec   { return userLogoutSpec }
func (UserLogout) PathValues() []string { return nil }

// GetSelf fetches the authenticated user, including private fields.
type GetSelf struct {
	command.Returns[models.User]
}

func (GetSelf) Spec() *command.Spec   { return getSelfSpec }
func (GetSelf) PathValues() []string { return nil }

// GetUser fetches a public profile.
type GetUser struct {
	command.Returns[models.User]
	UserID models.Snowflake
}

func (GetUser) Spec() *command.Spec     { return getUserSpec }
func (c GetUser) PathValues() []string { return []string{c.UserID.String()} }

// UpdateUserPrefs patches the stored preferences.
type UpdateUserPrefs struct {
	command.Returns[command.Empty]
	Prefs models.Preferences
}

func (UpdateUserPrefs) Spec() *command.Spec   { return updateUserPrefsSpec }
func (UpdateUserPrefs) PathValues() []string { return nil }
func (c UpdateUserPrefs) Body() any          { return &c.Prefs }
