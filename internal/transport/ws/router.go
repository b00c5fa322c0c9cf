package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

type handlerFunc func(ctx context.Context, conn *Conn, raw json.RawMessage) error

type route struct {
	handler handlerFunc

	// needSession requires a completed key exchange. Violations close
	// the connection: a peer sending business frames before the
	// handshake is not confused, it is probing.
	needSession bool

	// needAuth requires a bound user. Violations answer with a
	// structured error and keep the connection open.
	needAuth bool
}

// Router maps opcodes to handlers through a static table built once at
// startup. Frames of one connection dispatch inline on its read
// goroutine, so per-connection ordering is the receive order.
type Router struct {
	routes map[OpCode]route
}

// NewRouter builds the dispatch table over the given handlers.
func NewRouter(h *Handlers) *Router {
	return &Router{routes: map[OpCode]route{
		OpReceiveAes:                  {handler: h.handleReceiveAes},
		OpRequestToCreateAccount:      {handler: h.handleCreateAccount, needSession: true},
		OpRequestLogin:                {handler: h.handleLogin, needSession: true},
		OpRequestToVerify:             {handler: h.handleVerify, needSession: true},
		OpRequestedRelationshipUpdate: {handler: h.handleRelationshipUpdate, needSession: true, needAuth: true},
		OpUserSendChatMessage:         {handler: h.handleChatMessage, needSession: true, needAuth: true},
	}}
}

// Dispatch routes one decoded frame. Returned errors are connection
// fatal; business rejections have already been answered on the wire.
func (r *Router) Dispatch(ctx context.Context, conn *Conn, op OpCode, raw json.RawMessage) error {
	rt, ok := r.routes[op]
	if !ok {
		return fmt.Errorf("%w: unroutable opcode %s", ErrProtocolFault, op)
	}

	if rt.needSession && !conn.Established() {
		return fmt.Errorf("%w: opcode %s before key exchange", ErrProtocolFault, op)
	}

	if rt.needAuth && conn.UserID() == 0 {
		info := domain.ErrorInfo{Code: domain.ErrCodeWrongLoginData}
		if op == OpUserSendChatMessage {
			return conn.SendPayload(ctx, chatMessagePayload{OpCode: OpUserReceiveChatMessage, Error: info})
		}
		return conn.SendPayload(ctx, relationshipAnswer{OpCode: OpAnswerToRelationshipUpdate, Error: info})
	}

	return rt.handler(ctx, conn, raw)
}
