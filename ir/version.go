package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a GLSL language version as written in #version.
// Number is the three digit form (450, 310); ES marks "es" profiles.
type Version struct {
	Number uint32
	ES     bool
}

// ParseVersion parses "450", "310 es" or "300 es".
func ParseVersion(s string) (Version, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return Version{}, fmt.Errorf("invalid GLSL version %q", s)
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil || n < 100 {
		return Version{}, fmt.Errorf("invalid GLSL version %q", s)
	}
	v := Version{Number: uint32(n)}
	if len(fields) == 2 {
		if fields[1] != "es" {
			return Version{}, fmt.Errorf("invalid GLSL profile %q", fields[1])
		}
		v.ES = true
	}
	return v, nil
}

// String renders the version the way #version spells it.
func (v Version) String() string {
	if v.ES {
		return fmt.Sprintf("%d es", v.Number)
	}
	return strconv.FormatUint(uint64(v.Number), 10)
}

// Semver maps 450 to 4.50.0. The zero Version maps to the newest desktop
// version so that unversioned inputs are not feature-gated.
func (v Version) Semver() *semver.Version {
	n := v.Number
	if n == 0 {
		n = 460
	}
	return semver.New(uint64(n/100), uint64(n%100), 0, "", "")
}

var (
	desktopExplicitLocation = mustConstraint(">= 4.30")
	esExplicitLocation      = mustConstraint(">= 3.10")
	desktopMemberOffset     = mustConstraint(">= 4.40")
	desktopBindless         = mustConstraint(">= 4.00")
)

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// SupportsExplicitUniformLocation reports whether layout(location=N) is
// allowed on default-block uniforms.
func (v Version) SupportsExplicitUniformLocation() bool {
	if v.ES {
		return esExplicitLocation.Check(v.Semver())
	}
	return desktopExplicitLocation.Check(v.Semver())
}

// SupportsMemberOffset reports whether layout(offset=N) and layout(align=N)
// are allowed on block members.
func (v Version) SupportsMemberOffset() bool {
	if v.ES {
		return false
	}
	return desktopMemberOffset.Check(v.Semver())
}

// SupportsBindless reports whether bindless sampler/image qualifiers apply.
func (v Version) SupportsBindless() bool {
	if v.ES {
		return false
	}
	return desktopBindless.Check(v.Semver())
}
