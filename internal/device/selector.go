package device

import (
	"context"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/grid-agent/pkg/bridge"
)

// Properties are the device attributes implementations are selected on.
type Properties struct {
	Serial       string
	Manufacturer string
	Model        string
	Release      string
	APILevel     int
}

// Version parses Release leniently ("13" becomes 13.0.0). It returns nil for
// releases that are not version numbers, e.g. preview code names.
func (p Properties) Version() *semver.Version {
	v, err := semver.NewVersion(p.Release)
	if err != nil {
		return nil
	}
	return v
}

// FetchProperties reads the selection properties from the device.
func FetchProperties(ctx context.Context, br bridge.Bridge, serial string) (Properties, error) {
	props := Properties{Serial: serial}
	fields := []struct {
		key string
		dst *string
	}{
		{"ro.product.manufacturer", &props.Manufacturer},
		{"ro.product.model", &props.Model},
		{"ro.build.version.release", &props.Release},
	}
	for _, f := range fields {
		value, err := br.GetProp(ctx, serial, f.key)
		if err != nil {
			return props, err
		}
		*f.dst = strings.TrimSpace(value)
	}

	sdk, err := br.GetProp(ctx, serial, "ro.build.version.sdk")
	if err != nil {
		return props, err
	}
	props.APILevel, _ = strconv.Atoi(strings.TrimSpace(sdk))
	return props, nil
}

// Predicate decides whether an implementation applies to a device.
type Predicate func(Properties) bool

// ManufacturerIs matches the manufacturer case-insensitively.
func ManufacturerIs(name string) Predicate {
	return func(p Properties) bool {
		return strings.EqualFold(p.Manufacturer, name)
	}
}

// ReleaseSatisfies matches devices whose Android release satisfies the semver
// constraint. It panics on an invalid constraint, which is a programming error.
func ReleaseSatisfies(constraint string) Predicate {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		panic("device: invalid release constraint " + constraint + ": " + err.Error())
	}
	return func(p Properties) bool {
		v := p.Version()
		return v != nil && c.Check(v)
	}
}

// APILevelBelow matches devices with a known SDK level below level.
func APILevelBelow(level int) Predicate {
	return func(p Properties) bool {
		return p.APILevel > 0 && p.APILevel < level
	}
}

// All matches when every predicate matches.
func All(preds ...Predicate) Predicate {
	return func(p Properties) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

type selectorEntry[T any] struct {
	name  string
	match Predicate
	impl  T
}

// Selector picks an implementation for a device from an ordered list of
// (predicate, implementation) pairs. Entries are evaluated in registration
// order, so the most specific ones must be registered first. The fallback
// applies when nothing matches.
type Selector[T any] struct {
	entries      []selectorEntry[T]
	fallbackName string
	fallback     T
}

// NewSelector creates a selector with the given fallback.
func NewSelector[T any](fallbackName string, fallback T) *Selector[T] {
	return &Selector[T]{fallbackName: fallbackName, fallback: fallback}
}

// Register appends an entry.
func (s *Selector[T]) Register(name string, match Predicate, impl T) *Selector[T] {
	s.entries = append(s.entries, selectorEntry[T]{name: name, match: match, impl: impl})
	return s
}

// Resolve returns the name and implementation of the first matching entry.
func (s *Selector[T]) Resolve(p Properties) (string, T) {
	for _, e := range s.entries {
		if e.match(p) {
			return e.name, e.impl
		}
	}
	return s.fallbackName, s.fallback
}
