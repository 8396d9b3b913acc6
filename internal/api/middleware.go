package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const headerAPIKey = "X-API-Key"

// apiKeyCheck guards every route except the health probe when
// COTADOR_API_KEY is set. With no key configured the API stays open.
func apiKeyCheck() echo.MiddlewareFunc {
	secret := os.Getenv("COTADOR_API_KEY")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" || c.Path() == "/" {
				return next(c)
			}
			given := c.Request().Header.Get(headerAPIKey)
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, errorPayload("unauthorized"))
			}
			return next(c)
		}
	}
}

// rateLimiter throttles per client IP. COTADOR_RATE_LIMIT sets the
// per-minute budget; the health probe is exempt so orchestrators can
// poll it freely.
func rateLimiter() echo.MiddlewareFunc {
	perMinute := 120
	if v := os.Getenv("COTADOR_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perMinute = n
		}
	}
	burst := perMinute / 4
	if burst < 5 {
		burst = 5
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60.0),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, errorPayload("could not identify client"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, errorPayload("rate limit exceeded"))
		},
	})
}
