/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

const (
	MinNameLength     = 2
	MaxNameLength     = 50
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token string         `json:"token"`
	User  *user.Identity `json:"user"`
}

// alreadySignedIn reports whether the request carries a token that still verifies.
func alreadySignedIn(deps *AppDeps, r *http.Request) bool {
	token := jwt.BearerToken(r)
	if token == "" {
		return false
	}
	_, err := deps.Verifier.Verify(r.Context(), token)
	return err == nil
}

func issueToken(deps *AppDeps, identity *user.Identity) (string, time.Time, error) {
	return jwt.IssueToken(identity, deps.Config.JWTSecret, jwt.AccessTokenExpiration)
}

// HandleRegister creates an account from name, email and password. The
// request must carry a proof token obtained from the PoW challenge.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if alreadySignedIn(deps, r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		if !deps.PoW.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input RegisterInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name := strings.TrimSpace(input.Name)
		if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidName))
			return
		}

		email := strings.ToLower(strings.TrimSpace(input.Email))
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
			return
		}

		if n := utf8.RuneCountInString(input.Password); n < MinPasswordLength || n > MaxPasswordLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			logx.Error(err, "register: password hashing failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		account := &user.Account{
			Identity: user.Identity{
				ID:     randx.ID(),
				Name:   name,
				Email:  email,
				Role:   user.RoleMember,
				Status: user.StatusOffline,
			},
			PasswordHash: string(hashedPassword),
		}

		if err := deps.Store.CreateUser(r.Context(), account); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				logx.Warn("registration conflict: email already exists")
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user in store")
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailure))
			return
		}

		token, _, err := issueToken(deps, &account.Identity)
		if err != nil {
			logx.Error(err, "failed to generate token after registration")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User registered", "user_id", account.ID)
		resp.RespondCreated(w, r, AuthResult{Token: token, User: &account.Identity})
	}
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if alreadySignedIn(deps, r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		account, err := deps.Store.FindAccountByEmail(r.Context(), strings.ToLower(strings.TrimSpace(input.Email)))
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logx.Error(err, "login: account lookup failed")
				resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailure))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !account.IsActive {
			logx.Warn("login: inactive account", "user_id", account.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "user_id", account.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, _, err := issueToken(deps, &account.Identity)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, AuthResult{Token: token, User: &account.Identity})
	}
}
