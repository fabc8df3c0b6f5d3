package flux

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
)

// SocketAdapter dials a fresh connection per request and speaks HTTP/1.1
// straight over it. It exists for callers that need to control the socket
// itself: custom dialers, unusual networks, or per-request connections with
// no pooling.
type SocketAdapter struct {
	dialer    *net.Dialer
	tlsConfig *tls.Config
}

// NewSocketAdapter creates a SocketAdapter; a nil dialer selects defaults.
func NewSocketAdapter(dialer *net.Dialer) *SocketAdapter {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &SocketAdapter{dialer: dialer}
}

// WithTLSConfig sets the TLS configuration for https targets and returns a.
func (a *SocketAdapter) WithTLSConfig(cfg *tls.Config) *SocketAdapter {
	a.tlsConfig = cfg
	return a
}

// Send implements Adapter.
func (a *SocketAdapter) Send(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	ctx, cancel := applyTimeout(ctx, cfg)

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	// One exchange per connection; let the server close after responding.
	req.Close = true

	conn, err := a.dial(ctx, req)
	if err != nil {
		cancel()
		return nil, classifySendError(ctx, cfg, req, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Mirror context cancellation onto the socket so blocked reads unblock.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	// Writing the request relays a stream body chunk by chunk; a failure on
	// the stream side surfaces here and tears the connection down.
	if err := req.Write(conn); err != nil {
		close(watchDone)
		_ = conn.Close()
		cancel()
		return nil, classifySendError(ctx, cfg, req, err)
	}

	native, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		close(watchDone)
		_ = conn.Close()
		cancel()
		return nil, classifySendError(ctx, cfg, req, err)
	}

	return finishResponse(ctx, cfg, native, funcCloser(func() error {
		close(watchDone)
		cancel()
		return conn.Close()
	}))
}

func (a *SocketAdapter) dial(ctx context.Context, req *http.Request) (net.Conn, error) {
	host := req.URL.Hostname()
	port := req.URL.Port()
	secure := req.URL.Scheme == "https"
	if port == "" {
		if secure {
			port = "443"
		} else {
			port = "80"
		}
	}

	conn, err := a.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	if !secure {
		return conn, nil
	}

	tlsCfg := a.tlsConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = host
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
