package service

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/protocol"
)

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			Logger().Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			Logger().Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "connect to "+url)
	}
	return nc, nil
}

// Remote sends envelopes to a Service over NATS.
type Remote struct {
	nc     *nats.Conn
	prefix string
}

// NewRemote creates a remote using prefix, or DefaultPrefix when empty.
func NewRemote(nc *nats.Conn, prefix string) *Remote {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Remote{nc: nc, prefix: prefix}
}

// Exchange publishes req and waits for the reply until ctx is done.
func (r *Remote) Exchange(ctx context.Context, op protocol.Op, req []byte) ([]byte, error) {
	if len(req) == 0 {
		return nil, errors.InvalidInput(errors.PhaseProtocol, "empty request")
	}
	msg, err := r.nc.RequestWithContext(ctx, Subject(r.prefix, op), req)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProtocol, errors.KindStatus, err, "request "+string(op))
	}
	return msg.Data, nil
}
