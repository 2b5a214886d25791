// internal/autofill/select.go
package autofill

import (
	"context"
	"fmt"
)

// SelectForm picks the best candidate from the buckets, scanning packed keys
// from (form, marker, password) down to (no form, no marker, no password).
// A short-circuited classification returns its selection unchanged.
func SelectForm(cls *Classification) (*Candidate, error) {
	if cls.Selected != nil {
		return cls.Selected, nil
	}
	for k := 7; k >= 0; k-- {
		if bucket := cls.buckets[bucketKey(k)]; len(bucket) > 0 {
			cls.Selected = bucket[0]
			cls.Path = PathBucket
			return bucket[0], nil
		}
	}
	return nil, ErrNoLoginFormFound
}

// FindUsername resolves the username field of a selected candidate. A missing
// username is not an error and yields nil.
func FindUsername(ctx context.Context, roots []Node, cand *Candidate) (Element, error) {
	if cand.User != nil {
		return cand.User, nil
	}
	matches, err := QueryVisible(ctx, scopeOf(roots, cand.Form), UsernameRules, UsernameTypes)
	if err != nil {
		return nil, fmt.Errorf("username lookup failed: %w", err)
	}
	for _, m := range matches {
		if (OwnerForm(m) == nil) != (cand.Form == nil) {
			continue
		}
		if m == cand.Password {
			continue
		}
		return m, nil
	}
	if cand.Form == nil {
		return nil, nil
	}

	// Unattributed fields inside a real form still count when their type
	// property qualifies.
	fallback, err := QueryVisible(ctx, []Node{cand.Form}, []Rule{AnyInput}, UsernameTypes)
	if err != nil {
		return nil, fmt.Errorf("username fallback lookup failed: %w", err)
	}
	for _, m := range fallback {
		if m != cand.Password {
			return m, nil
		}
	}
	return nil, nil
}

// Resolution is the outcome of discovery: the fields to fill and how they
// were found.
type Resolution struct {
	Roots          []Node
	Classification *Classification
	Selected       *Candidate
	User           Element
	Password       Element
}

// Discover runs root enumeration, classification, selection and the
// complementary search without touching the page.
func Discover(ctx context.Context, host Host) (*Resolution, error) {
	roots, err := EnumerateRoots(ctx, host)
	if err != nil {
		return nil, err
	}
	res := &Resolution{Roots: roots}
	cls, err := Classify(ctx, roots)
	if err != nil {
		return res, err
	}
	res.Classification = cls

	if cls.Path == PathShortCircuitUser {
		res.Selected = cls.Selected
		res.User = cls.Selected.User
		res.Password = cls.Selected.Password
		return res, nil
	}

	selected, err := SelectForm(cls)
	if err != nil {
		return res, err
	}
	res.Selected = selected
	res.Password = selected.Password
	user, err := FindUsername(ctx, roots, selected)
	if err != nil {
		return res, err
	}
	res.User = user
	return res, nil
}
