package launcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the interface version this launcher implements. Automation that
// declares a compatible interface version gets unknown-argument tolerance;
// see Resolve.
const Version = "1.0.0"

// supportedVersions is the compatibility range anchored to our own version.
var supportedVersions = mustConstraint("^" + Version)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// UnknownArgError reports a single argument token the parser could not
// place.
type UnknownArgError struct {
	Arg string
}

func (e *UnknownArgError) Error() string {
	return fmt.Sprintf("unknown argument: %s", e.Arg)
}

// CompatOutcome is the result of version-gated argument resolution.
type CompatOutcome struct {
	// Tolerated holds the unknown tokens that were stripped under a
	// compatible, non-identical declared version, in original order.
	Tolerated []string
}

// Resolve applies the version-gated argument compatibility rules and drives
// parse to a full, successful parse when the rules allow it.
//
// parse must attempt a complete parse of args and return *UnknownArgError
// for the first token it cannot place. The decision table:
//
//	no declared version            strict: unknown arguments are parse errors
//	declared == launcher version   strict: an exact match leaves no excuse
//	declared in range, not equal   lenient: unknown tokens stripped and reported
//	declared outside range         fatal before anything is spawned
func Resolve(declared string, args []string, parse func([]string) error) (*CompatOutcome, error) {
	lenient := false
	if declared != "" {
		v, err := semver.NewVersion(declared)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q: %v", ErrVersion, declared, err)
		}
		if !supportedVersions.Check(v) {
			return nil, fmt.Errorf("%w %s (supported: %s)", ErrVersion, declared, supportedVersions)
		}
		lenient = !v.Equal(semver.MustParse(Version))
	}

	out := &CompatOutcome{}
	for {
		err := parse(args)
		if err == nil {
			return out, nil
		}
		var unknown *UnknownArgError
		if !errors.As(err, &unknown) {
			return nil, err
		}
		token, rest := stripArg(args, unknown.Arg)
		if !lenient {
			if token != "" {
				// report the token as the caller wrote it
				return nil, &UnknownArgError{Arg: token}
			}
			return nil, err
		}
		if token == "" {
			// the parser blamed a token we cannot find; give up rather
			// than loop forever
			return nil, err
		}
		out.Tolerated = append(out.Tolerated, token)
		args = rest
	}
}

// stripArg removes the first argument matching tok and returns the removed
// token as it appeared. Flag tokens match regardless of dash count and with
// or without an inline "=value"; anything else must match verbatim.
func stripArg(args []string, tok string) (string, []string) {
	name := strings.TrimLeft(tok, "-")
	for i, a := range args {
		match := a == tok
		if !match && strings.HasPrefix(a, "-") && name != "" {
			an := strings.TrimLeft(a, "-")
			match = an == name || strings.HasPrefix(an, name+"=")
		}
		if match {
			rest := make([]string, 0, len(args)-1)
			rest = append(rest, args[:i]...)
			rest = append(rest, args[i+1:]...)
			return a, rest
		}
	}
	return "", args
}

// ScanDeclaredVersion extracts the declared interface version from raw
// arguments before any real parse happens. Unknown arguments elsewhere in
// the invocation must not prevent the version from being seen, since the
// version decides how those arguments are treated.
func ScanDeclaredVersion(args []string) string {
	const flag = "interface-version"
	for i, a := range args {
		an := strings.TrimLeft(a, "-")
		if !strings.HasPrefix(a, "-") {
			continue
		}
		if an == flag && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(an, flag+"=") {
			return an[len(flag)+1:]
		}
	}
	return ""
}
