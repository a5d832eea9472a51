// Package entity provides the record entity base shared by tracked domain objects.
package entity

import "fmt"

// Identity is an optional store key. The zero value is the transient state:
// no key has been assigned yet. A present key never doubles as a sentinel.
type Identity[K comparable] struct {
	key K
	set bool
}

// None returns the transient identity.
func None[K comparable]() Identity[K] {
	return Identity[K]{}
}

// Some returns a present identity holding k.
func Some[K comparable](k K) Identity[K] {
	return Identity[K]{key: k, set: true}
}

// Get returns the key and whether it is present.
func (i Identity[K]) Get() (K, bool) {
	return i.key, i.set
}

// IsTransient reports whether no key has been assigned.
func (i Identity[K]) IsTransient() bool {
	return !i.set
}

// String renders the key, or "<transient>".
func (i Identity[K]) String() string {
	if !i.set {
		return "<transient>"
	}
	return fmt.Sprint(i.key)
}
