package permission

// Entitlement bits. A user's static flags (canTake, canAuthor, canManage) are stored as
// one Mask64 so they travel through stores and session payloads as a single integer.
const (
	EntitlementTake = iota
	EntitlementAuthor
	EntitlementManage
)

// Mask64 is a 64-bit entitlement set.
type Mask64 uint64

// NewMask64 returns a mask with the given bits set.
func NewMask64(bits ...int) Mask64 {
	var m Mask64
	for _, b := range bits {
		m.Set(b)
	}
	return m
}

func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return (m & (1 << bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= (1 << bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= (1 << bit)
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}

// CanTake reports the canTake flag.
func (m Mask64) CanTake() bool { return m.Has(EntitlementTake) }

// CanAuthor reports the canAuthor flag.
func (m Mask64) CanAuthor() bool { return m.Has(EntitlementAuthor) }

// CanManage reports the canManage flag.
func (m Mask64) CanManage() bool { return m.Has(EntitlementManage) }
