// internal/autofill/classify.go
package autofill

import (
	"context"
	"fmt"
)

// Role tags which selector family discovered an anchor.
type Role int

const (
	RoleUser Role = iota
	RolePassword
)

func (r Role) String() string {
	if r == RolePassword {
		return "password"
	}
	return "user"
}

// Anchor is a field matched directly by a selector rule.
type Anchor struct {
	Field Element
	Role  Role
}

// Candidate is a possible login form seeded by one anchor. Form is nil for
// fields outside any form; those share a single scope.
type Candidate struct {
	Form     Element
	Marker   bool
	Role     Role
	User     Element
	Password Element
}

// bucketKey packs (hasForm, marker, hasPassword) into three bits, most
// significant first, so that a larger key always means a better candidate.
type bucketKey uint8

func packKey(hasForm, marker, hasPassword bool) bucketKey {
	var k bucketKey
	if hasForm {
		k |= 1 << 2
	}
	if marker {
		k |= 1 << 1
	}
	if hasPassword {
		k |= 1
	}
	return k
}

func keyOf(c *Candidate) bucketKey {
	return packKey(c.Form != nil, c.Marker, c.Password != nil)
}

func (k bucketKey) String() string {
	return fmt.Sprintf("form=%t,marker=%t,password=%t", k&4 != 0, k&2 != 0, k&1 != 0)
}

// Path records how the selected form was reached.
type Path string

const (
	PathShortCircuitUser     Path = "short-circuit-user"
	PathShortCircuitPassword Path = "short-circuit-password"
	PathBucket               Path = "bucket"
)

// Classification is the result of one pass over the anchors. Selected is set
// by a short circuit here, or later by SelectForm.
type Classification struct {
	Anchors []Anchor
	// Visited lists the owner forms classified, nil standing for the shared
	// no-form scope, in discovery order.
	Visited []Element
	// Candidates holds every candidate built, in discovery order.
	Candidates []*Candidate
	buckets    map[bucketKey][]*Candidate
	Selected   *Candidate
	Path       Path
}

// Bucket returns the candidates stored under a key, in discovery order.
func (c *Classification) Bucket(hasForm, marker, hasPassword bool) []*Candidate {
	return c.buckets[packKey(hasForm, marker, hasPassword)]
}

// OwnerForm returns the form that owns el. An explicit form attribute names a
// form by id within the element's tree scope; otherwise the nearest ancestor
// form inside the same scope owns it.
func OwnerForm(el Element) Element {
	if id, ok := el.Attr("form"); ok {
		if id == "" {
			return nil
		}
		var found Element
		walk(el.Scope(), func(cand Element) bool {
			if v, ok := cand.Attr("id"); ok && v == id {
				if cand.Tag() == "form" {
					found = cand
				}
				return false
			}
			return true
		})
		return found
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p.Tag() == "form" {
			return p
		}
	}
	return nil
}

// Classify collects anchors from roots and sorts the forms they belong to into
// confidence buckets. It stops early when a marked form with a password field
// is found.
func Classify(ctx context.Context, roots []Node) (*Classification, error) {
	passwords, err := QueryVisible(ctx, roots, PasswordRules, nil)
	if err != nil {
		return nil, fmt.Errorf("password query failed: %w", err)
	}
	users, err := QueryVisible(ctx, roots, UsernameRules, UsernameTypes)
	if err != nil {
		return nil, fmt.Errorf("username query failed: %w", err)
	}

	cls := &Classification{buckets: make(map[bucketKey][]*Candidate)}
	for _, p := range passwords {
		cls.Anchors = append(cls.Anchors, Anchor{Field: p, Role: RolePassword})
	}
	for _, u := range users {
		cls.Anchors = append(cls.Anchors, Anchor{Field: u, Role: RoleUser})
	}

	seen := make(map[Element]bool)
	for _, anchor := range cls.Anchors {
		form := OwnerForm(anchor.Field)
		if seen[form] {
			continue
		}
		seen[form] = true
		cls.Visited = append(cls.Visited, form)

		password, err := resolvePassword(ctx, roots, anchor.Field, form)
		if err != nil {
			return nil, err
		}
		cand := &Candidate{
			Form:     form,
			Marker:   HasMarker(form),
			Role:     anchor.Role,
			Password: password,
		}
		if anchor.Role == RoleUser {
			cand.User = anchor.Field
		}
		cls.Candidates = append(cls.Candidates, cand)

		if cand.Marker && cand.Password != nil {
			cls.Selected = cand
			if anchor.Role == RoleUser {
				cls.Path = PathShortCircuitUser
			} else {
				cls.Path = PathShortCircuitPassword
			}
			return cls, nil
		}
		k := keyOf(cand)
		cls.buckets[k] = append(cls.buckets[k], cand)
	}
	return cls, nil
}

// resolvePassword returns the anchor itself when it is password typed, or the
// first visible password match in the anchor's scope whose form presence
// agrees with the anchor's.
func resolvePassword(ctx context.Context, roots []Node, anchor, form Element) (Element, error) {
	state, err := anchor.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe anchor %s: %w", anchor.Describe(), err)
	}
	if state.Type == "password" {
		return anchor, nil
	}
	matches, err := QueryVisible(ctx, scopeOf(roots, form), PasswordRules, nil)
	if err != nil {
		return nil, fmt.Errorf("password lookup failed: %w", err)
	}
	for _, m := range matches {
		if (OwnerForm(m) == nil) != (form == nil) {
			continue
		}
		return m, nil
	}
	return nil, nil
}

func scopeOf(roots []Node, form Element) []Node {
	if form != nil {
		return []Node{form}
	}
	return roots
}
