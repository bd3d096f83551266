package model

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims issued to riders, drivers and admins. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

func (c *Claims) Actor() Actor {
	return Actor{Role: c.Role, UserID: c.Subject}
}
