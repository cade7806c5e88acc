package permission

import (
	"errors"
	"sync"
)

// RootPermission is the wildcard name mapped to the reserved root bit.
const RootPermission = "*"

// ErrRegistryFull is returned when every non-root bit is assigned.
var ErrRegistryFull = errors.New("permission registry full")

// Registry maps permission names to bit positions. Bits are assigned on
// first sight and stay stable until [Registry.Reset], so masks built before
// and after a refetch remain comparable.
type Registry struct {
	maxBits int
	rootBit int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
}

// NewRegistry creates a registry of maxBits (64, 128, 256 or 512) with the
// highest bit reserved for [RootPermission].
func NewRegistry(maxBits int) (*Registry, error) {
	if maxBits != 64 && maxBits != 128 && maxBits != 256 && maxBits != 512 {
		return nil, errors.New("invalid maxBits")
	}
	return &Registry{
		maxBits:   maxBits,
		rootBit:   maxBits - 1,
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}, nil
}

// Intern returns the bit for name, assigning the next free one if needed.
func (r *Registry) Intern(name string) (int, error) {
	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}
	if name == RootPermission {
		return r.rootBit, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if bit, ok := r.nameToBit[name]; ok {
		return bit, nil
	}
	nextBit := len(r.nameToBit)
	if nextBit >= r.rootBit {
		return -1, ErrRegistryFull
	}
	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	return nextBit, nil
}

// Bit returns the bit index for name, or false if it was never interned.
func (r *Registry) Bit(name string) (int, bool) {
	if name == RootPermission {
		return r.rootBit, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for bit, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	if bit == r.rootBit {
		return RootPermission, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Reset forgets every interned name. Masks built earlier become
// meaningless.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.nameToBit)
	clear(r.bitToName)
}

// Count returns the number of interned names, excluding the root.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// RootBit returns the reserved root bit.
func (r *Registry) RootBit() int {
	return r.rootBit
}

// MaxBits returns the mask width.
func (r *Registry) MaxBits() int {
	return r.maxBits
}
