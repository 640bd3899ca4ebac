// Package transport opens the TCP connections the downloader needs: the
// control connection to the IRC server and the DCC data connection to the
// bot. Both go through the same Dialer, so a configured proxy covers both.
//
// # Dialers
//
// Direct:
//
//	d, err := transport.NewDialer(nil, transport.DefaultDialTimeout)
//
// SOCKS5 (for example Tor on its default port):
//
//	d, err := transport.NewDialer(&transport.ProxyConfig{
//	    Type: "socks5",
//	    Host: "127.0.0.1",
//	    Port: 9050,
//	}, transport.DefaultDialTimeout)
//
// HTTP CONNECT:
//
//	d, err := transport.NewDialer(&transport.ProxyConfig{Type: "http", Host: "proxy.local", Port: 3128}, 0)
//
// Every Dialer honours the context passed to DialContext. Only "tcp"
// networks are supported through a proxy; DCC and IRC never need UDP.
package transport
