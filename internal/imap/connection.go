package imap

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// ConnectToIMAP connects to the IMAP server with a 5-second timeout.
// useTLS: true for production (TLS), false for tests (non-TLS).
func ConnectToIMAP(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	// Non-TLS connection for testing
	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}

// Logout closes the session, swallowing errors since the connection is
// going away either way.
func Logout(c *client.Client) {
	if c == nil {
		return
	}
	_ = c.Logout()
}

// SupportsGmailExtensions reports whether the server advertises Gmail's
// IMAP extensions (X-GM-THRID and friends).
func SupportsGmailExtensions(c *client.Client) bool {
	ok, err := c.Support("X-GM-EXT-1")
	if err != nil {
		return false
	}
	return ok
}
