package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

// Rejection is a request refused for a reason the sender is told about.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string { return r.Code + ": " + r.Message }

// Frame renders the rejection as an error frame.
func (r *Rejection) Frame() protocol.Frame {
	return protocol.NewError(r.Code, r.Message)
}

func reject(code, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

var errInternal = reject(protocol.ErrInternal, "internal error")

// replyError sends err to the client as an error frame. Anything that is
// not a Rejection is logged and reported generically.
func replyError(c *Client, op string, err error) {
	var rej *Rejection
	if errors.As(err, &rej) {
		c.Send(rej.Frame())
		return
	}
	slog.Error("request failed", "op", op, "client", c.id, "error", err)
	c.Send(errInternal.Frame())
}

// dispatch parses one inbound frame and routes it by message type.
func (s *Server) dispatch(ctx context.Context, c *Client, data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		code := protocol.ErrInvalidRequest
		if errors.Is(err, protocol.ErrUnknownType) {
			code = protocol.ErrUnknownTypeCode
		}
		slog.Debug("rejected frame", "client", c.id, "error", err)
		c.Send(protocol.NewError(code, err.Error()))
		return
	}

	sess := c.Session()
	if sess == nil {
		m, ok := msg.(protocol.Auth)
		if !ok {
			c.Send(protocol.NewError(protocol.ErrUnauthenticated, "first message must be 'auth'"))
			return
		}
		if !c.beginAuth() {
			return
		}
		s.handleAuth(ctx, c, m)
		c.endAuth()
		return
	}

	if !s.registry.IsCurrent(sess) {
		c.Send(protocol.NewError(protocol.ErrSessionReplaced, "session replaced by a newer connection"))
		return
	}

	switch m := msg.(type) {
	case protocol.Auth:
		c.Send(protocol.NewError(protocol.ErrInvalidRequest, "already authenticated"))
	case protocol.Command:
		s.handleCommand(ctx, sess, m)
	case protocol.PairRequest:
		s.handlePairRequest(ctx, sess, m)
	case protocol.PairResponse:
		s.handlePairResponse(ctx, sess, m)
	case protocol.DeviceList:
		s.handleDeviceList(ctx, sess)
	case protocol.DeviceInfo:
		s.handleDeviceInfo(ctx, sess, m)
	case protocol.Ping:
		c.Send(protocol.NewFrame(protocol.TypePong, nil))
	default:
		slog.Error("unhandled message type", "type", fmt.Sprintf("%T", msg), "client", c.id)
		c.Send(protocol.NewError(protocol.ErrUnknownTypeCode, "unsupported message type: "+msg.MessageType()))
	}
}
