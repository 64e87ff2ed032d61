package service

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/protocol"
)

const (
	DefaultPrefix  = "krakatau"
	DefaultTimeout = 30 * time.Second
)

// Exchanger runs one request envelope to completion. *protocol.Boundary,
// *host.Client and *Remote all implement it.
type Exchanger interface {
	Exchange(ctx context.Context, op protocol.Op, req []byte) ([]byte, error)
}

// Options configure a Service.
type Options struct {
	// Prefix is prepended to the operation name to form the subject and is
	// also the queue group, so replicas share the load.
	Prefix string
	// Timeout bounds each request.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Subject returns the subject serving op under prefix.
func Subject(prefix string, op protocol.Op) string {
	return prefix + "." + string(op)
}

// Service answers request envelopes published on NATS.
type Service struct {
	nc     *nats.Conn
	ex     Exchanger
	cancel context.CancelFunc
	subs   []*nats.Subscription
	opts   Options
	mu     sync.Mutex
}

// New creates a service that replies using ex.
func New(nc *nats.Conn, ex Exchanger, opts Options) *Service {
	return &Service{nc: nc, ex: ex, opts: opts.withDefaults()}
}

// Start subscribes to the decompile and assemble subjects. Requests run
// under ctx until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs != nil {
		return errors.InvalidInput(errors.PhaseHost, "service already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	for _, op := range []protocol.Op{protocol.OpDecompile, protocol.OpAssemble} {
		subject := Subject(s.opts.Prefix, op)
		sub, err := s.nc.QueueSubscribe(subject, s.opts.Prefix, s.handle(ctx, op))
		if err != nil {
			cancel()
			for _, prev := range s.subs {
				_ = prev.Unsubscribe()
			}
			s.subs = nil
			return errors.Registration(errors.PhaseHost, "nats", subject, err)
		}
		s.subs = append(s.subs, sub)
		Logger().Info("subscribed", zap.String("subject", subject), zap.String("queue", s.opts.Prefix))
	}
	s.cancel = cancel
	return s.nc.Flush()
}

// Stop drains the subscriptions, letting in-flight requests finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return firstErr
}

func (s *Service) handle(ctx context.Context, op protocol.Op) nats.MsgHandler {
	return func(msg *nats.Msg) {
		reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		start := time.Now()
		body, err := s.ex.Exchange(reqCtx, op, msg.Data)
		if err != nil {
			Logger().Error("exchange failed",
				zap.String("op", string(op)),
				zap.Int("size", len(msg.Data)),
				zap.Error(err))
			body = protocol.FailureEnvelope(protocol.UnknownFilePath, err.Error())
		}

		if err := msg.Respond(body); err != nil {
			Logger().Error("respond failed", zap.String("op", string(op)), zap.Error(err))
			return
		}
		Logger().Debug("request served",
			zap.String("op", string(op)),
			zap.Int("request", len(msg.Data)),
			zap.Int("response", len(body)),
			zap.Duration("elapsed", time.Since(start)))
	}
}
