package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are route templates reachable without a bearer token.
var publicPaths = map[string]bool{
	"/health":                     true,
	"/health/db":                  true,
	"/metrics":                    true,
	"/api/v1/self-reports":        true,
	"/api/v1/external/simulation": true,
}

// AuthSkipper returns true for requests whose matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is a public route template.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
