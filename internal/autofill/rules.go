// internal/autofill/rules.go
package autofill

import (
	"strings"
)

// -- Selector Vocabulary --

// AttrMatch compares one attribute value, ignoring case. With Substring set
// the value only has to contain Value; otherwise the whole value must equal it.
type AttrMatch struct {
	Name      string
	Value     string
	Substring bool
}

func (m AttrMatch) matches(el Element) bool {
	have, ok := el.Attr(m.Name)
	if !ok {
		return false
	}
	if m.Substring {
		return m.Value != "" && strings.Contains(strings.ToLower(have), strings.ToLower(m.Value))
	}
	return strings.EqualFold(have, m.Value)
}

// Rule selects input elements whose attributes satisfy every match.
// A rule without matches selects every input.
type Rule struct {
	Matches []AttrMatch
}

// Match reports whether el satisfies the rule.
func (r Rule) Match(el Element) bool {
	if !IsInput(el) {
		return false
	}
	for _, m := range r.Matches {
		if !m.matches(el) {
			return false
		}
	}
	return true
}

// String renders the rule as a CSS selector.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString("input")
	for _, m := range r.Matches {
		op := "="
		if m.Substring {
			op = "*="
		}
		b.WriteString("[" + m.Name + op + m.Value + " i]")
	}
	return b.String()
}

func exact(name, value string) Rule {
	return Rule{Matches: []AttrMatch{{Name: name, Value: value}}}
}

func contains(name, value string) Rule {
	return Rule{Matches: []AttrMatch{{Name: name, Value: value, Substring: true}}}
}

// AnyInput matches every input element.
var AnyInput = Rule{}

// UsernameRules are tried in priority order when looking for a username field.
var UsernameRules = buildUsernameRules()

func buildUsernameRules() []Rule {
	rules := []Rule{exact("autocomplete", "username")}
	for _, attr := range []string{"name", "id", "class"} {
		for _, v := range []string{"login", "user", "username", "email", "alias"} {
			rules = append(rules, exact(attr, v))
		}
	}
	for _, attr := range []string{"name", "id", "class"} {
		for _, v := range []string{"login", "user", "email", "alias"} {
			rules = append(rules, contains(attr, v))
		}
	}
	return append(rules,
		exact("type", "email"),
		exact("autocomplete", "email"),
		exact("type", "text"),
		exact("type", "tel"),
	)
}

// PasswordRules are tried in priority order when looking for a password field.
var PasswordRules = []Rule{
	{Matches: []AttrMatch{{Name: "type", Value: "password"}, {Name: "autocomplete", Value: "current-password"}}},
	exact("type", "password"),
}

// UsernameTypes lists the type property values a username field may have.
var UsernameTypes = []string{"text", "tel", "email"}

// FormMarkerAttrs are the form attributes inspected for a login marker.
var FormMarkerAttrs = []string{"id", "name", "class", "action"}

// FormMarkers are the attribute values that flag a form as a login form.
var FormMarkers = []string{"login", "log-in", "log_in", "signin", "sign-in", "sign_in"}

// HasMarker reports whether form carries a login marker attribute.
func HasMarker(form Element) bool {
	if form == nil {
		return false
	}
	for _, attr := range FormMarkerAttrs {
		have, ok := form.Attr(attr)
		if !ok || have == "" {
			continue
		}
		for _, want := range FormMarkers {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}
