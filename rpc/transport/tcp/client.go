package tcp

import (
	"net"
	"time"

	"github.com/dmap-io/dmap/rpc/common"
	"github.com/dmap-io/dmap/rpc/transport"
	"github.com/dmap-io/dmap/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

// UpgradeConnection applies performance optimizations to a TCP connection
// using the transport settings of the client configuration
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}
	return tuneTCPConn(tcpConn, tcpOptions{
		NoDelay:         config.Transport.TCPNoDelay,
		KeepAliveSec:    config.Transport.TCPKeepAliveSec,
		LingerSec:       config.Transport.TCPLingerSec,
		WriteBufferSize: config.Transport.WriteBufferSize,
		ReadBufferSize:  config.Transport.ReadBufferSize,
	})
}

// --------------------------------------------------------------------------
// Shared TCP tuning
// --------------------------------------------------------------------------

// tcpOptions collects the tunable socket settings shared by client and server
type tcpOptions struct {
	NoDelay         bool
	KeepAliveSec    int
	LingerSec       int
	WriteBufferSize int
	ReadBufferSize  int
}

// tuneTCPConn applies the socket options to an established TCP connection
func tuneTCPConn(tcpConn *net.TCPConn, opts tcpOptions) error {
	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(opts.NoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if opts.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(opts.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if opts.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(opts.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if opts.KeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(opts.KeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured
	if opts.LingerSec >= 0 {
		if err := tcpConn.SetLinger(opts.LingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
