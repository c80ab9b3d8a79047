package permission

// TokenService is the slice of the token service the gate depends on.
type TokenService interface {
	Issue(userID, role string) (string, error)
	Role(token string) (string, error)
}

// Gate checks token roles against required roles.
//
// Gate holds no mutable state and is safe for concurrent use.
type Gate struct {
	tokens TokenService
}

// NewGate returns a gate backed by tokens.
func NewGate(tokens TokenService) *Gate {
	return &Gate{tokens: tokens}
}

// CheckRole returns nil when the token carries exactly the required role. Token
// validation errors (expired, invalid) are returned unchanged so callers can tell a
// forced logout apart from a forbidden action.
func (g *Gate) CheckRole(token string, requiredRole Role) error {
	role, err := g.tokens.Role(token)
	if err != nil {
		return err
	}
	if Role(role) != requiredRole {
		return ErrInvalidRole
	}
	return nil
}

// NewTokenByRole mints a token for userID under role.
func (g *Gate) NewTokenByRole(role Role, userID string) (string, error) {
	return g.tokens.Issue(userID, string(role))
}
