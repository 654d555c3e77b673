package broadcaster

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const sendBufferSize = 32

// Connection is the registry's handle on one live client channel. The
// transport layer drains Send and binds ping/close to the underlying
// socket; the registry never touches the socket directly.
type Connection struct {
	Id   string
	Send chan Message

	ping  func() error
	close func() error
}

func NewConnection(ping func() error, close func() error) *Connection {
	return &Connection{
		Id:    gonanoid.Must(),
		Send:  make(chan Message, sendBufferSize),
		ping:  ping,
		close: close,
	}
}

// Ping sends a transport-level liveness probe to the peer.
func (c *Connection) Ping() error {
	if c.ping == nil {
		return nil
	}

	return c.ping()
}

// Close tears down the underlying channel. Safe to call after the peer
// is already gone.
func (c *Connection) Close() error {
	if c.close == nil {
		return nil
	}

	return c.close()
}
