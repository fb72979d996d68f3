package match

import (
	"fmt"
	"net"

	"github.com/gocraft2-project/gocraft2/internal/protocol"
)

// PortConfig is the engine-to-engine port block for a multi-client game.
// Every participant must send identical port sets in its join_game request,
// or the engines never find each other.
type PortConfig struct {
	// StartPort is the base the block was derived from, zero when the
	// ports were picked freely.
	StartPort int32

	ServerPorts protocol.PortSet
	ClientPorts []protocol.PortSet
}

// NewPortConfig derives the conventional block from a start port: the host
// engine uses start+2/start+3, the joining client start+4/start+5. Ladder
// managers hand bots a start port and expect exactly this layout.
func NewPortConfig(startPort int32) *PortConfig {
	return &PortConfig{
		StartPort:   startPort,
		ServerPorts: protocol.PortSet{GamePort: startPort + 2, BasePort: startPort + 3},
		ClientPorts: []protocol.PortSet{
			{GamePort: startPort + 4, BasePort: startPort + 5},
		},
	}
}

// FreePortConfig builds a block from ephemeral ports, for local matches
// where no external convention is imposed. All four listeners are held open
// until every port is collected so the OS cannot hand one out twice.
func FreePortConfig() (*PortConfig, error) {
	listeners := make([]net.Listener, 0, 4)
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	ports := make([]int32, 4)
	for i := range ports {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("failed to pick a free port: %w", err)
		}
		listeners = append(listeners, ln)
		ports[i] = int32(ln.Addr().(*net.TCPAddr).Port)
	}

	return &PortConfig{
		ServerPorts: protocol.PortSet{GamePort: ports[0], BasePort: ports[1]},
		ClientPorts: []protocol.PortSet{
			{GamePort: ports[2], BasePort: ports[3]},
		},
	}, nil
}
