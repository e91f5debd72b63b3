// Package tor routes fetches through a SOCKS5 proxy.
//
// A Proxy wraps golang.org/x/net/proxy for an existing SOCKS5 endpoint,
// typically a local Tor daemon on 127.0.0.1:9050. EmbeddedTor starts a
// private daemon through tornago when none is available. Either way the
// resulting dialer is handed to the fetch package with fetch.WithDialer.
package tor
