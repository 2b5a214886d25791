// internal/messaging/server.go
package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/loginfill/api/schemas"
)

// Handler answers one request. *autofill.Filler satisfies it.
type Handler interface {
	Handle(ctx context.Context, req schemas.Request) schemas.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req schemas.Request) schemas.Response

func (f HandlerFunc) Handle(ctx context.Context, req schemas.Request) schemas.Response {
	return f(ctx, req)
}

// Server answers native-messaging requests on a byte stream. Requests are
// handled one at a time, in arrival order, and every frame read gets exactly
// one response frame.
type Server struct {
	in      io.Reader
	codec   *Codec
	handler Handler
	limiter *rate.Limiter
	logger  *zap.Logger

	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxIn int
	rps   float64
	burst int
}

// WithMaxMessageBytes caps inbound frames.
func WithMaxMessageBytes(n int) Option {
	return func(o *serverOptions) { o.maxIn = n }
}

// WithRateLimit paces request handling. Requests over the rate wait; none are
// dropped. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *serverOptions) { o.rps, o.burst = rps, burst }
}

// NewServer builds a server reading requests from in and writing responses
// to out. If in is an io.Closer it is closed when Serve stops.
func NewServer(in io.Reader, out io.Writer, handler Handler, logger *zap.Logger, opts ...Option) *Server {
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		in:      in,
		codec:   NewCodec(in, out, o.maxIn),
		handler: handler,
		logger:  logger.Named("native_messaging"),
	}
	if o.rps > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}
	return s
}

type frame struct {
	payload []byte
	err     error
}

// Serve runs until the input ends cleanly (nil), ctx is canceled (ctx.Err())
// or the stream breaks.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Serving native messaging requests.")
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan frame)

	g.Go(func() error {
		defer close(frames)
		return s.readLoop(gctx, frames)
	})
	g.Go(func() error {
		defer s.closeInput()
		return s.handleLoop(gctx, frames)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Native messaging stopped.", zap.Error(err))
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.logger.Info("Input closed; native messaging stopped.")
	return nil
}

func (s *Server) readLoop(ctx context.Context, frames chan<- frame) error {
	for {
		payload, err := s.codec.ReadFrame()
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil && !errors.Is(err, ErrFrameTooLarge):
			return err
		}
		select {
		case frames <- frame{payload: payload, err: err}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) handleLoop(ctx context.Context, frames <-chan frame) error {
	for {
		var f frame
		var ok bool
		select {
		case f, ok = <-frames:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		id := uuid.NewString()
		logger := s.logger.With(zap.String("request_id", id))

		var resp schemas.Response
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				resp = schemas.Failuref("Request not handled: %v", err)
				if werr := s.reply(logger, resp); werr != nil {
					return werr
				}
				return ctx.Err()
			}
		}
		resp = s.dispatch(ctx, logger, f)
		if err := s.reply(logger, resp); err != nil {
			return err
		}
	}
}

// dispatch turns one frame into one response; it never panics.
func (s *Server) dispatch(ctx context.Context, logger *zap.Logger, f frame) (resp schemas.Response) {
	start := time.Now()
	if f.err != nil {
		logger.Warn("Rejected oversized message.", zap.Error(f.err))
		return schemas.Failure(f.err.Error())
	}

	var req schemas.Request
	if err := Decode(f.payload, &req); err != nil {
		logger.Warn("Rejected malformed message.", zap.Int("bytes", len(f.payload)), zap.Error(err))
		return schemas.Failure(err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in handler.",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			resp = schemas.Failuref("internal error while handling %s: %v", req.Type, r)
		}
		logger.Info("Handled request.",
			zap.String("type", req.Type.String()),
			zap.Bool("success", resp.Success()),
			zap.Duration("duration", time.Since(start)))
	}()
	return s.handler.Handle(ctx, req)
}

func (s *Server) reply(logger *zap.Logger, resp schemas.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if len(payload) > MaxOutboundBytes {
		logger.Warn("Response exceeded the outbound limit; replacing it.", zap.Int("bytes", len(payload)))
		payload, err = json.Marshal(schemas.Failure("response too large"))
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}
	if err := s.codec.WriteFrame(payload); err != nil {
		return err
	}
	return nil
}

func (s *Server) closeInput() {
	s.closeOnce.Do(func() {
		if c, ok := s.in.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Debug("Failed to close input.", zap.Error(err))
			}
		}
	})
}
