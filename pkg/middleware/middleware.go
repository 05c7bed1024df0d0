// Package middleware carries the gin middleware for the control surface.
package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/jag2430/fix-executor/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors   = make(map[string]*visitor)
	visitorsMu sync.Mutex

	// Per-endpoint-class limits.
	authLimit    = rate.Limit(10.0 / 60.0)   // 10/min
	controlLimit = rate.Limit(300.0 / 60.0)  // 300/min
	statusLimit  = rate.Limit(1000.0 / 60.0) // 1000/min
)

func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientID string) *rate.Limiter {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	key := clientID + ":" + path
	v, ok := visitors[key]
	if !ok {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/orders"),
			strings.HasPrefix(path, "/api/v1/config"),
			strings.HasPrefix(path, "/api/v1/market-data"):
			limit = controlLimit
		case strings.HasPrefix(path, "/api/v1/health"):
			limit = statusLimit
		default:
			limit = rate.Inf
		}
		v = &visitor{limiter: rate.NewLimiter(limit, 5)}
		visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		visitorsMu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		visitorsMu.Unlock()
	}
}

// RateLimit throttles per client and endpoint class.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}
		if !getLimiter(c.FullPath(), clientID).Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}
		c.Next()
	}
}

// JWTAuth validates the bearer token signed with the given secret and puts
// the client id into the context.
func JWTAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		bearer := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearer) != 2 || !strings.EqualFold(bearer[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		token, err := jwt.Parse(bearer[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			response.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}
		clientID, ok := claims["client_id"].(string)
		if !ok {
			response.Unauthorized(c, "Missing client id claim")
			c.Abort()
			return
		}

		c.Set("clientID", clientID)
		c.Next()
	}
}
