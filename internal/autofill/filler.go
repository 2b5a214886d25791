// internal/autofill/filler.go
package autofill

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/api/schemas"
)

// Outcome summarises one handled request. It never carries credential values.
type Outcome struct {
	Kind             schemas.RequestType
	PageURL          string
	UserResolved     bool
	PasswordResolved bool
	Path             Path
	Err              error
	Duration         time.Duration
}

// Recorder receives the outcome of every handled request.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Locator is implemented by hosts that know the address of their page.
type Locator interface {
	URL(ctx context.Context) (string, error)
}

// Filler dispatches fill requests against one page.
type Filler struct {
	host     Host
	focus    *FocusTracker
	injector *Injector
	recorder Recorder
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Filler.
type Option func(*Filler)

// WithRecorder attaches a recorder for request outcomes.
func WithRecorder(r Recorder) Option {
	return func(f *Filler) { f.recorder = r }
}

// WithTimeout bounds field discovery for each request. Zero disables the
// bound. Injection is never cut short: once the first value is written the
// request runs to completion.
func WithTimeout(d time.Duration) Option {
	return func(f *Filler) { f.timeout = d }
}

// NewFiller wires a filler to host and subscribes its focus tracker when the
// host can report focus changes.
func NewFiller(host Host, logger *zap.Logger, opts ...Option) *Filler {
	logger = logger.Named("filler")
	focus := NewFocusTracker()
	if !focus.Attach(host) {
		logger.Debug("Host does not report focus changes; fill_field will only see fields this filler touched.")
	}
	f := &Filler{
		host:     host,
		focus:    focus,
		injector: NewInjector(host, focus, logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Focus exposes the tracker so callers can seed or inspect it.
func (f *Filler) Focus() *FocusTracker { return f.focus }

// Handle runs one request to completion and always returns exactly one
// response. Panics are converted into failure responses.
func (f *Filler) Handle(ctx context.Context, req schemas.Request) (resp schemas.Response) {
	start := time.Now()
	outcome := Outcome{Kind: req.Type}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Recovered from panic while handling request.",
				zap.String("type", req.Type.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outcome.Err = fmt.Errorf("internal error while handling %s: %v", req.Type, r)
			resp = schemas.Failure(outcome.Err.Error())
		}
		outcome.Duration = time.Since(start)
		f.record(ctx, outcome)
	}()

	switch req.Type {
	case schemas.RequestFillUserPassword:
		res, err := f.FillUserPassword(ctx, req.User, req.Password)
		if res != nil {
			outcome.UserResolved = res.User != nil
			outcome.PasswordResolved = res.Password != nil
			if res.Classification != nil {
				outcome.Path = res.Classification.Path
			}
		}
		outcome.Err = err
	case schemas.RequestFillField:
		outcome.Err = f.FillField(ctx, req.Text)
		outcome.UserResolved = outcome.Err == nil
	default:
		outcome.Err = fmt.Errorf("%w: %q", ErrUnrecognizedRequestType, req.Type)
	}

	if outcome.Err != nil {
		f.logger.Info("Request failed.", zap.String("type", req.Type.String()), zap.Error(outcome.Err))
		return schemas.Failure(outcome.Err.Error())
	}
	return schemas.OK()
}

// FillUserPassword discovers the login fields on the page and writes the
// credentials into whichever of them were found.
func (f *Filler) FillUserPassword(ctx context.Context, user, password string) (*Resolution, error) {
	discoverCtx, cancel := f.bounded(ctx)
	res, err := Discover(discoverCtx, f.host)
	cancel()
	if err != nil {
		return res, err
	}
	ctx = context.WithoutCancel(ctx)

	f.logger.Debug("Login fields resolved.",
		zap.String("path", string(res.Classification.Path)),
		zap.Int("roots", len(res.Roots)),
		zap.Int("anchors", len(res.Classification.Anchors)))

	if res.User != nil {
		el, err := f.injector.Fill(ctx, res.User, user)
		if err != nil {
			return res, fmt.Errorf("failed to fill username: %w", err)
		}
		f.logger.Info("Set value on user field.", zap.String("field", el.Describe()), zap.Int("length", len(user)))
	} else {
		f.logger.Info("No user field found.")
	}
	if res.Password != nil {
		el, err := f.injector.Fill(ctx, res.Password, password)
		if err != nil {
			return res, fmt.Errorf("failed to fill password: %w", err)
		}
		f.logger.Info("Set value on password field.", zap.String("field", el.Describe()), zap.Int("length", len(password)))
	} else {
		f.logger.Info("No password field found.")
	}
	return res, nil
}

// FillField writes text into the most recently focused or blurred input.
func (f *Filler) FillField(ctx context.Context, text string) error {
	if s, ok := f.host.(FocusSyncer); ok {
		if err := s.SyncFocus(ctx); err != nil {
			f.logger.Debug("Could not deliver pending focus change.", zap.Error(err))
		}
	}
	target := f.focus.Last()
	if target == nil {
		return ErrNoFocusedField
	}
	el, err := f.injector.Fill(context.WithoutCancel(ctx), target, text)
	if err != nil {
		return fmt.Errorf("failed to fill focused field: %w", err)
	}
	f.logger.Info("Set value on focused field.", zap.String("field", el.Describe()), zap.Int("length", len(text)))
	return nil
}

func (f *Filler) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}

func (f *Filler) record(ctx context.Context, o Outcome) {
	if f.recorder == nil {
		return
	}
	if loc, ok := f.host.(Locator); ok {
		if u, err := loc.URL(ctx); err == nil {
			o.PageURL = u
		} else {
			f.logger.Debug("Could not read page URL for journal.", zap.Error(err))
		}
	}
	if err := f.recorder.Record(ctx, o); err != nil {
		f.logger.Warn("Failed to record fill outcome.", zap.Error(err))
	}
}
