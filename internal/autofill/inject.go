// internal/autofill/inject.go
package autofill

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf16"

	"go.uber.org/zap"
)

var (
	focusEvents      = []string{"click", "focus"}
	activationEvents = []string{"keydown", "keypress", "keyup", "input", "change"}
)

// Injector writes values into fields using the event sequence a real user
// would produce, so page scripts accept the write.
type Injector struct {
	host   Host
	focus  *FocusTracker
	logger *zap.Logger
}

// NewInjector creates an injector. focus may be nil.
func NewInjector(host Host, focus *FocusTracker, logger *zap.Logger) *Injector {
	return &Injector{
		host:   host,
		focus:  focus,
		logger: logger.Named("injector"),
	}
}

// Fill writes value into target and returns the element that finally received
// it, which differs from target when the page swapped the field on click.
func (inj *Injector) Fill(ctx context.Context, target Element, value string) (Element, error) {
	before, err := target.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", target.Describe(), err)
	}

	if err := inj.dispatchAll(ctx, target, focusEvents); err != nil {
		return nil, err
	}
	inj.recordFocus(target)

	rect := before.Rect
	if after, err := target.Probe(ctx); err == nil {
		rect = after.Rect
	} else if !errors.Is(err, ErrStale) {
		return nil, fmt.Errorf("failed to probe %s: %w", target.Describe(), err)
	}
	x, y := rect.Center()
	top, err := inj.host.ElementFromPoint(ctx, x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to hit-test (%.1f, %.1f): %w", x, y, err)
	}
	if top != nil && top != target && IsInput(top) {
		inj.logger.Debug("Field was replaced after click, retargeting.",
			zap.String("from", target.Describe()),
			zap.String("to", top.Describe()))
		target = top
		if err := inj.dispatchAll(ctx, target, focusEvents); err != nil {
			return nil, err
		}
		inj.recordFocus(target)
	}

	if err := inj.dispatchAll(ctx, target, activationEvents); err != nil {
		return nil, err
	}

	state, err := target.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", target.Describe(), err)
	}
	written := TruncateUTF16(value, state.MaxLength)
	if err := write(ctx, target, written); err != nil {
		return nil, err
	}

	if err := inj.dispatchAll(ctx, target, activationEvents); err != nil {
		return nil, err
	}

	current, err := target.Value(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s: %w", target.Describe(), err)
	}
	if current != written {
		inj.logger.Debug("Value was reverted by the page, writing again.", zap.String("field", target.Describe()))
		if err := write(ctx, target, written); err != nil {
			return nil, err
		}
	}

	if err := target.Dispatch(ctx, "blur"); err != nil {
		return nil, fmt.Errorf("failed to dispatch blur on %s: %w", target.Describe(), err)
	}
	inj.recordFocus(target)
	return target, nil
}

func (inj *Injector) dispatchAll(ctx context.Context, el Element, events []string) error {
	for _, ev := range events {
		if err := el.Dispatch(ctx, ev); err != nil {
			return fmt.Errorf("failed to dispatch %s on %s: %w", ev, el.Describe(), err)
		}
	}
	return nil
}

func (inj *Injector) recordFocus(el Element) {
	if inj.focus != nil {
		inj.focus.Record(el)
	}
}

func write(ctx context.Context, el Element, value string) error {
	if err := el.SetAttr(ctx, "value", value); err != nil {
		return fmt.Errorf("failed to set value attribute on %s: %w", el.Describe(), err)
	}
	if err := el.SetValue(ctx, value); err != nil {
		return fmt.Errorf("failed to set value on %s: %w", el.Describe(), err)
	}
	return nil
}

// TruncateUTF16 shortens s to at most max UTF-16 code units, never splitting a
// surrogate pair. A max of zero or less leaves s untouched.
func TruncateUTF16(s string, max int) string {
	if max <= 0 {
		return s
	}
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > max {
			return s[:i]
		}
		units += n
	}
	return s
}
