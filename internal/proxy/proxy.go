// Package proxy models the outbound proxy descriptors a session is routed
// through. Descriptors are immutable and sourced from config; connection
// attempts walk the list in its given order and never reorder it.
package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Descriptor is one proxy endpoint.
type Descriptor struct {
	Scheme   string `json:"scheme"` // "socks5" or "http"
	Addr     string `json:"addr"`
	Port     int    `json:"port"`
	RDNS     bool   `json:"rdns,omitempty"` // resolve hostnames on the proxy side
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// URL renders the descriptor as a *url.URL, the form the MTProto client
// accepts. Credentials are attached only when a username is present.
func (d Descriptor) URL() *url.URL {
	u := &url.URL{
		Scheme: d.Scheme,
		Host:   net.JoinHostPort(d.Addr, strconv.Itoa(d.Port)),
	}
	if d.Username != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}
	return u
}

// Label is a short loggable identity that never includes credentials.
func (d Descriptor) Label() string {
	return fmt.Sprintf("%s://%s:%d", d.Scheme, d.Addr, d.Port)
}

func (d Descriptor) Validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Scheme)) {
	case "socks5", "http":
	case "":
		return fmt.Errorf("proxy scheme is required")
	default:
		return fmt.Errorf("unsupported proxy scheme %q", d.Scheme)
	}
	if strings.TrimSpace(d.Addr) == "" {
		return fmt.Errorf("proxy addr is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("proxy port %d out of range", d.Port)
	}
	return nil
}

// ValidateList checks every descriptor and reports the first offender by index.
func ValidateList(list []Descriptor) error {
	for i, d := range list {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("proxies[%d]: %w", i, err)
		}
	}
	return nil
}
