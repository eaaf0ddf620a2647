package jwt

import "github.com/golang-jwt/jwt"

// RoleOperator is the only role the operator API accepts.
const RoleOperator = "operator"

// Payload defines the claims of an operator API token.
type Payload struct {
	// StandardClaims carries expiry, issue time and issuer.
	jwt.StandardClaims

	// Operator names the holder of the token. It is the console name for tokens minted at startup.
	Operator string `json:"operator"`

	// Role gates what the token may do.
	Role string `json:"role"`
}
