// Package gate holds the access gate's route table and decision table,
// independent of any router.
package gate

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// RouteClass classifies a request path
type RouteClass int

const (
	// Unmatched paths are not gated
	Unmatched RouteClass = iota
	// Auth paths are the sign-in and sign-up pages
	Auth
	// Protected paths require a session
	Protected
)

func (c RouteClass) String() string {
	switch c {
	case Auth:
		return "auth"
	case Protected:
		return "protected"
	default:
		return "unmatched"
	}
}

// Outcome is what the gate does with a request
type Outcome int

const (
	Pass Outcome = iota
	RedirectSignIn
	RedirectDashboard
)

func (o Outcome) String() string {
	switch o {
	case RedirectSignIn:
		return "redirect_signin"
	case RedirectDashboard:
		return "redirect_dashboard"
	default:
		return "pass"
	}
}

// Decide is the gate's decision table
func Decide(hasSession bool, class RouteClass) Outcome {
	switch {
	case class == Protected && !hasSession:
		return RedirectSignIn
	case class == Auth && hasSession:
		return RedirectDashboard
	default:
		return Pass
	}
}

// Rule binds a path prefix to a route class
type Rule struct {
	Prefix string
	Class  RouteClass
}

// Table is a closed set of prefix rules. A path matches a prefix when it
// equals it or continues with "/" after it, so "/dashboard" covers
// "/dashboard/sales" but not "/dashboards".
type Table struct {
	rules []Rule
}

// NewTable builds a table from auth and protected prefixes. It rejects empty
// or relative prefixes and any prefix listed under both classes.
func NewTable(authPrefixes, protectedPrefixes []string) (*Table, error) {
	seen := make(map[string]RouteClass)
	var rules []Rule

	add := func(prefix string, class RouteClass) error {
		prefix = normalize(prefix)
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("gate prefix %q must be an absolute path", prefix)
		}
		if prev, ok := seen[prefix]; ok {
			if prev != class {
				return fmt.Errorf("gate prefix %q is both %s and %s", prefix, prev, class)
			}
			return nil
		}
		seen[prefix] = class
		rules = append(rules, Rule{Prefix: prefix, Class: class})
		return nil
	}

	for _, p := range authPrefixes {
		if err := add(p, Auth); err != nil {
			return nil, err
		}
	}
	for _, p := range protectedPrefixes {
		if err := add(p, Protected); err != nil {
			return nil, err
		}
	}

	// Longest prefix first so nested rules win deterministically
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})

	return &Table{rules: rules}, nil
}

// Classify returns the class of the longest matching prefix
func (t *Table) Classify(path string) RouteClass {
	if t == nil {
		return Unmatched
	}
	path = normalize(path)
	for _, r := range t.rules {
		if matches(path, r.Prefix) {
			return r.Class
		}
	}
	return Unmatched
}

// Rules returns a copy of the table's rules in match order
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

func matches(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// normalize cleans dot segments and repeated slashes so "//dashboard" and
// "/signin/../dashboard" classify like "/dashboard"
func normalize(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		return p
	}
	return path.Clean(p)
}
