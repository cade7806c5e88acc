package permission

// MaxMaskBits is the widest mask a Registry may use.
const MaxMaskBits = 512

// Mask is a fixed 512-bit permission set. Registries narrower than 512 bits
// simply leave the upper words empty.
type Mask [MaxMaskBits / 64]uint64

func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxMaskBits {
		return
	}
	m[bit/64] |= 1 << (bit % 64)
}

func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxMaskBits {
		return
	}
	m[bit/64] &^= 1 << (bit % 64)
}

// Has reports whether bit is set, or whether rootBit is set when rootBit is
// non-negative.
func (m *Mask) Has(bit, rootBit int) bool {
	if rootBit >= 0 && m.raw(rootBit) {
		return true
	}
	return m.raw(bit)
}

// Empty reports whether no bit is set.
func (m *Mask) Empty() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}

func (m *Mask) raw(bit int) bool {
	if bit < 0 || bit >= MaxMaskBits {
		return false
	}
	return m[bit/64]&(1<<(bit%64)) != 0
}
