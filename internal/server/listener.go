package server

import (
	"net"

	"github.com/apex/log"
)

// noDelayListener disables Nagle's algorithm on every accepted connection
type noDelayListener struct {
	*net.TCPListener
}

func (l noDelayListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err := conn.SetNoDelay(true); err != nil {
		log.WithError(err).Debug("failed to set TCP_NODELAY")
	}
	return conn, nil
}
