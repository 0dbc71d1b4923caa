package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/response"
)

const (
	// ContextUserID is the key for the caller's hex user id in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextPrincipal is the key for the authz.Principal of the caller.
	ContextPrincipal = "principal"
)

// TokenParser turns a bearer token into a principal.
type TokenParser interface {
	Parse(token string) (authz.Principal, error)
}

// UserLookup loads the account behind a token so bans and role changes take effect immediately.
type UserLookup interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// JWT returns a middleware that validates the bearer token and sets the principal in context.
func JWT(tokens TokenParser, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := authenticate(c, tokens, users)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// OptionalJWT authenticates when an Authorization header is present and lets anonymous requests through.
func OptionalJWT(tokens TokenParser, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		p, err := authenticate(c, tokens, users)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// CurrentPrincipal returns the authenticated caller, if any.
func CurrentPrincipal(c *gin.Context) (authz.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return authz.Principal{}, false
	}
	p, ok := v.(authz.Principal)
	return p, ok
}

func authenticate(c *gin.Context, tokens TokenParser, users UserLookup) (authz.Principal, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return authz.Principal{}, apperrors.Clone(apperrors.ErrUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return authz.Principal{}, apperrors.Clone(apperrors.ErrUnauthorized, "invalid authorization header")
	}
	p, err := tokens.Parse(parts[1])
	if err != nil {
		return authz.Principal{}, apperrors.Clone(apperrors.ErrUnauthorized, "invalid or expired token")
	}
	if users == nil {
		return p, nil
	}
	user, err := users.GetByID(c.Request.Context(), p.UserID)
	if err != nil {
		return authz.Principal{}, err
	}
	if user == nil {
		return authz.Principal{}, apperrors.Clone(apperrors.ErrUnauthorized, "account no longer exists")
	}
	if user.IsBanned {
		return authz.Principal{}, apperrors.ErrUserBanned
	}
	p.Role = user.Role
	p.Email = user.Email
	return p, nil
}

func setPrincipal(c *gin.Context, p authz.Principal) {
	c.Set(ContextPrincipal, p)
	c.Set(ContextUserID, p.UserID.Hex())
	c.Set(ContextUserRole, string(p.Role))
	c.Set(ContextUserEmail, p.Email)
}
