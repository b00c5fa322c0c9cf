package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
)

// socket is the slice of *websocket.Conn the connection handler needs.
// Tests substitute an in-memory implementation.
type socket interface {
	NextReader() (int, io.Reader, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn owns one connection's receive loop. It registers a session on
// start, sends the public-key frame, then reads, decodes and dispatches
// frames until a fatal fault or the context ends. All writes go through
// SendPayload, which other connections' handlers may also call, so the
// write path is mutex-guarded.
type Conn struct {
	id       string
	sock     socket
	codec    *Codec
	keypair  *security.Keypair
	registry *Registry
	router   *Router
	cfg      config.WSSettings
	logger   *zap.Logger
	metrics  *Metrics

	writeMu sync.Mutex
	cipher  *security.SessionCipher

	closeOnce sync.Once
}

// NewConn wraps an accepted socket.
func NewConn(id string, sock socket, codec *Codec, keypair *security.Keypair, registry *Registry, router *Router, cfg config.WSSettings, log *zap.Logger, metrics *Metrics) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		id:       id,
		sock:     sock,
		codec:    codec,
		keypair:  keypair,
		registry: registry,
		router:   router,
		cfg:      cfg,
		logger:   log.With(zap.String("conn_id", id)),
		metrics:  metrics,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the account bound to this connection, zero before a
// successful login. Reads go through the registry so they stay ordered
// against another connection stealing the binding.
func (c *Conn) UserID() int64 { return c.registry.UserOf(c.id) }

// Established reports whether the key exchange has completed.
func (c *Conn) Established() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.cipher != nil
}

// EstablishCipher installs the negotiated session cipher.
func (c *Conn) EstablishCipher(cipher *security.SessionCipher) {
	c.writeMu.Lock()
	c.cipher = cipher
	c.writeMu.Unlock()
}

// SendPayload encodes and writes one frame. Safe for concurrent use;
// handlers of other connections call this to push notifications.
func (c *Conn) SendPayload(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frame, err := c.codec.Encode(c.cipher, payload)
	if err != nil {
		return err
	}

	if c.cfg.WriteTimeout > 0 {
		if err := c.sock.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := c.sock.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Serve runs the connection to completion. It returns once the peer
// disconnects, a fatal fault closes the socket, or ctx ends.
func (c *Conn) Serve(ctx context.Context) {
	if c.cfg.ReadLimit > 0 {
		c.sock.SetReadLimit(c.cfg.ReadLimit)
	}

	c.registry.Put(c.id, c)
	c.metrics.connOpened()

	defer func() {
		c.registry.Remove(c.id)
		c.metrics.connClosed()
		_ = c.sock.Close()
	}()

	modulus, exponent := c.keypair.PublicKeyParams()
	if err := c.SendPayload(ctx, publicKeyPayload{OpCode: OpSendRSA, Modulus: modulus, Exponent: exponent}); err != nil {
		c.logger.Warn("send public key frame failed", zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			c.shutdown(websocket.CloseGoingAway, "server shutting down")
			return
		}

		frame, err := c.readFrame()
		if err != nil {
			if !isExpectedClose(err) {
				c.logger.Warn("transport read failed", zap.Error(err))
				c.metrics.fault("transport")
			}
			return
		}

		data, err := c.codec.Decode(c.cipherRef(), frame)
		if err != nil {
			c.logger.Warn("frame decode failed", zap.Error(err))
			c.metrics.fault(faultClass(err))
			c.shutdown(websocket.CloseInvalidFramePayloadData, "")
			return
		}

		op, err := c.codec.Opcode(data)
		if err != nil {
			c.logger.Warn("frame has no routable opcode", zap.Error(err))
			c.metrics.fault("protocol")
			c.shutdown(websocket.CloseInvalidFramePayloadData, "")
			return
		}
		c.metrics.frame(op)

		if err := c.router.Dispatch(ctx, c, op, data); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Warn("dispatch failed", zap.Stringer("opcode", op), zap.Error(err))
			c.metrics.fault(faultClass(err))
			c.shutdown(websocket.CloseInvalidFramePayloadData, "")
			return
		}
	}
}

// readFrame blocks for the next complete logical message. The websocket
// library reassembles continuation fragments behind NextReader, so one
// read here is one application frame regardless of how the peer split it.
func (c *Conn) readFrame() ([]byte, error) {
	messageType, reader, err := c.sock.NextReader()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
		return nil, fmt.Errorf("%w: unexpected message type %d", ErrProtocolFault, messageType)
	}
	frame, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return frame, nil
}

func (c *Conn) cipherRef() *security.SessionCipher {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.cipher
}

// shutdown sends the close frame once and closes the socket. Safe to
// call from the server's drain path concurrently with Serve.
func (c *Conn) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.cfg.CloseTimeout)
		if c.cfg.CloseTimeout <= 0 {
			deadline = time.Now().Add(10 * time.Second)
		}
		message := websocket.FormatCloseMessage(code, reason)
		if err := c.sock.WriteControl(websocket.CloseMessage, message, deadline); err != nil && !isExpectedClose(err) {
			c.logger.Debug("write close frame failed", zap.Error(err))
		}
		_ = c.sock.Close()
	})
}

// Shutdown closes the connection from outside the read loop, used by
// the server drain.
func (c *Conn) Shutdown(reason string) {
	c.shutdown(websocket.CloseGoingAway, reason)
}

func faultClass(err error) string {
	switch {
	case errors.Is(err, ErrCryptoFault):
		return "crypto"
	case errors.Is(err, ErrProtocolFault):
		return "protocol"
	default:
		return "internal"
	}
}

func isExpectedClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
