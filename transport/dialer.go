package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// DefaultDialTimeout bounds how long opening a control or data connection may take.
const DefaultDialTimeout = 30 * time.Second

// Dialer opens stream connections to IRC servers and DCC peers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProxyConfig contains configuration for proxy connections.
type ProxyConfig struct {
	Type     string `yaml:"type"` // "socks5" or "http"
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Address returns the proxy's host:port.
func (c *ProxyConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// NewDialer returns a Dialer that connects directly when config is nil or has
// an empty type, and through the configured proxy otherwise. Both the control
// connection and every data channel of a download go through the same dialer.
func NewDialer(config *ProxyConfig, timeout time.Duration) (Dialer, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	direct := &net.Dialer{Timeout: timeout}

	if config == nil || config.Type == "" {
		return direct, nil
	}

	proxyAddr := config.Address()

	logrus.WithFields(logrus.Fields{
		"function":   "NewDialer",
		"proxy_type": config.Type,
		"proxy_addr": proxyAddr,
	}).Info("Creating proxy dialer")

	switch config.Type {
	case "socks5":
		var auth *proxy.Auth
		if config.Username != "" || config.Password != "" {
			auth = &proxy.Auth{
				User:     config.Username,
				Password: config.Password,
			}
		}

		d, err := proxy.SOCKS5("tcp", proxyAddr, auth, direct)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "NewDialer",
				"proxy_type": config.Type,
				"proxy_addr": proxyAddr,
				"error":      err.Error(),
			}).Error("Failed to create SOCKS5 dialer")
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		return &socksDialer{dialer: d}, nil

	case "http":
		proxyURL := &url.URL{Scheme: "http", Host: proxyAddr}
		if config.Username != "" {
			if config.Password != "" {
				proxyURL.User = url.UserPassword(config.Username, config.Password)
			} else {
				proxyURL.User = url.User(config.Username)
			}
		}
		return &httpProxyDialer{proxyURL: proxyURL, forward: direct, timeout: timeout}, nil

	default:
		return nil, fmt.Errorf("unsupported proxy type: %s (must be 'socks5' or 'http')", config.Type)
	}
}

// socksDialer adapts a proxy.Dialer to the context-aware Dialer interface.
type socksDialer struct {
	dialer proxy.Dialer
}

// DialContext dials through the SOCKS5 proxy, honouring ctx when the
// underlying dialer supports it.
func (d *socksDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := d.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := d.dialer.Dial(network, address)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// httpProxyDialer implements Dialer for HTTP CONNECT proxies.
type httpProxyDialer struct {
	proxyURL *url.URL
	forward  *net.Dialer
	timeout  time.Duration
}

// DialContext connects to the address via HTTP CONNECT proxy.
func (d *httpProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("HTTP CONNECT proxy only supports TCP, got: %s", network)
	}

	proxyConn, err := d.forward.DialContext(ctx, "tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}

	if d.proxyURL.User != nil {
		username := d.proxyURL.User.Username()
		password, _ := d.proxyURL.User.Password()
		connectReq.SetBasicAuth(username, password)
	}

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := proxyConn.SetDeadline(deadline); err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := connectReq.Write(proxyConn); err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	br := bufio.NewReader(proxyConn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		proxyConn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed with status: %s", resp.Status)
	}

	if err := proxyConn.SetDeadline(time.Time{}); err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to clear deadline: %w", err)
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: proxyConn, r: br}, nil
	}
	return proxyConn, nil
}

// bufferedConn keeps bytes the CONNECT response reader already pulled off the wire.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
