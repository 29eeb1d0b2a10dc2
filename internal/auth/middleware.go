package auth

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// sessionKey is the echo context key the gate stores the session under.
const sessionKey = "authSession"

// RequireSession rejects requests without a valid auth cookie. API callers
// get a JSON 401 rather than a redirect.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := FromRequest(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
			}
			c.Set(sessionKey, sess)
			return next(c)
		}
	}
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(c echo.Context) (Session, bool) {
	sess, ok := c.Get(sessionKey).(Session)
	return sess, ok
}

// RequireSelf additionally checks that the cookie's user id matches the
// :userId path parameter, so users can only touch their own record.
func RequireSelf() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := strconv.Atoi(c.Param("userId"))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid user ID"})
			}
			sess, ok := SessionFrom(c)
			if !ok || sess.UserID != userID {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Unauthorized access"})
			}
			return next(c)
		}
	}
}
