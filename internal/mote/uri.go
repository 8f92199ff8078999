package mote

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	SchemeCoAP  = "coap"
	SchemeCoAPS = "coaps"

	DefaultPort       = 5683
	DefaultSecurePort = 5684

	// DefaultResource is the board-info resource exposed by the mote.
	DefaultResource = "w"
)

var ErrInvalidURI = errors.New("invalid coap uri")

// Target is a parsed request URI.
type Target struct {
	Scheme  string
	Host    string
	Port    int
	Path    string
	Queries []string
}

// Addr returns host:port suitable for dialing.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Secure reports whether the target requires DTLS.
func (t Target) Secure() bool {
	return t.Scheme == SchemeCoAPS
}

// BuildURI returns coap://[address]/resource.
func BuildURI(address, resource string) string {
	return FormatURI(SchemeCoAP, address, 0, resource)
}

// FormatURI builds a request URI. The address is always bracketed and a zero
// port is left out so the scheme default applies.
func FormatURI(scheme, address string, port int, resource string) string {
	host := "[" + address + "]"
	if port > 0 {
		host += ":" + strconv.Itoa(port)
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, strings.TrimPrefix(resource, "/"))
}

// ParseTarget splits a coap or coaps URI into the parts needed to dial and
// issue a request.
func ParseTarget(uri string) (Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, fmt.Errorf("%w %q: %v", ErrInvalidURI, uri, err)
	}
	t := Target{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Path:   u.Path,
	}
	switch t.Scheme {
	case SchemeCoAP:
		t.Port = DefaultPort
	case SchemeCoAPS:
		t.Port = DefaultSecurePort
	default:
		return Target{}, fmt.Errorf("%w %q: unsupported scheme %q", ErrInvalidURI, uri, u.Scheme)
	}
	if t.Host == "" {
		return Target{}, fmt.Errorf("%w %q: missing host", ErrInvalidURI, uri)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil || port == 0 {
			return Target{}, fmt.Errorf("%w %q: invalid port %q", ErrInvalidURI, uri, p)
		}
		t.Port = int(port)
	}
	if t.Path == "" || t.Path == "/" {
		return Target{}, fmt.Errorf("%w %q: missing resource path", ErrInvalidURI, uri)
	}
	if u.RawQuery != "" {
		t.Queries = strings.Split(u.RawQuery, "&")
	}
	return t, nil
}
