package transport

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint locates one engine's WebSocket listener.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the host:port form of the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the ws:// URL of the engine's client protocol handler.
func (e Endpoint) URL() string {
	return fmt.Sprintf("ws://%s/sc2api", e.Addr())
}

func (e Endpoint) String() string {
	return e.Addr()
}
