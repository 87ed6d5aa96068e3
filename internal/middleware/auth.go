package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shinyyama/demart-backend/internal/service"
)

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

var ErrInvalidToken = errors.New("invalid token")

// FirebaseAuth verifies Firebase ID tokens and doubles as the user directory.
type FirebaseAuth struct {
	client *auth.Client
}

func NewFirebaseAuth(ctx context.Context, projectID string) (*FirebaseAuth, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &FirebaseAuth{client: client}, nil
}

func (f *FirebaseAuth) Verify(ctx context.Context, token string) (string, error) {
	tok, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return tok.UID, nil
}

func (f *FirebaseAuth) Lookup(ctx context.Context, uid string) (*service.UserProfile, error) {
	user, err := f.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, service.ErrNotFound
		}
		return nil, err
	}
	return &service.UserProfile{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}, nil
}

// HeaderAuth trusts the caller: the token, or the X-User-Id header, is the
// user id. Only for local runs and tests.
type HeaderAuth struct{}

const HeaderUserID = "X-User-Id"

func (HeaderAuth) Verify(_ context.Context, token string) (string, error) {
	uid := strings.TrimSpace(token)
	if uid == "" {
		return "", ErrInvalidToken
	}
	return uid, nil
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func unauthorized(c echo.Context, code, message string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error": echo.Map{"code": code, "message": message},
	})
}

// tokenFrom reads the bearer token. Browsers cannot set headers on websocket
// upgrades, so those may pass it as ?token= instead.
func (m *AuthMiddleware) tokenFrom(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if _, ok := m.verifier.(HeaderAuth); ok {
		if uid := r.Header.Get(HeaderUserID); uid != "" {
			return uid
		}
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := m.tokenFrom(c.Request())
		if token == "" {
			return unauthorized(c, "unauthorized", "missing token")
		}
		uid, err := m.verifier.Verify(c.Request().Context(), token)
		if err != nil || service.ReservedUID(uid) {
			return unauthorized(c, "invalid_token", "invalid token")
		}
		c.Set("uid", uid)
		ctx := reqctx.WithActor(c.Request().Context(), uid)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
