package permission

import "errors"

// ErrInvalidRole is returned when a token's role does not match the required role, or a
// role transition is not permitted by the user's entitlements.
var ErrInvalidRole = errors.New("invalid role")

// Role is the active permission level carried in a token's subject claim.
type Role string

const (
	RoleTaker   Role = "taker"
	RoleAuthor  Role = "author"
	RoleManager Role = "manager"
)

// ladder is ordered from least to most privileged.
var ladder = []Role{RoleTaker, RoleAuthor, RoleManager}

var required = map[Role]int{
	RoleTaker:   EntitlementTake,
	RoleAuthor:  EntitlementAuthor,
	RoleManager: EntitlementManage,
}

// Roles returns the recognized role names in ladder order.
func Roles() []string {
	out := make([]string, len(ladder))
	for i, r := range ladder {
		out[i] = string(r)
	}
	return out
}

// ParseRole maps a claim value back to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := required[r]
	return r, ok
}

// Entitlement returns the entitlement bit a user needs to act under r.
func (r Role) Entitlement() (int, bool) {
	bit, ok := required[r]
	return bit, ok
}

// Permits reports whether the entitlement set allows acting under r.
func Permits(m Mask64, r Role) bool {
	bit, ok := required[r]
	return ok && m.Has(bit)
}

// Up returns the next role above r in the ladder.
func Up(r Role) (Role, bool) {
	i := rank(r)
	if i < 0 || i+1 >= len(ladder) {
		return "", false
	}
	return ladder[i+1], true
}

// Down returns the next role below r in the ladder.
func Down(r Role) (Role, bool) {
	i := rank(r)
	if i <= 0 {
		return "", false
	}
	return ladder[i-1], true
}

// DefaultRole returns the least privileged role the entitlement set permits.
func DefaultRole(m Mask64) (Role, bool) {
	for _, r := range ladder {
		if Permits(m, r) {
			return r, true
		}
	}
	return "", false
}

func rank(r Role) int {
	for i, candidate := range ladder {
		if candidate == r {
			return i
		}
	}
	return -1
}
