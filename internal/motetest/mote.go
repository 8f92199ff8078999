// Package motetest runs an in-process mote for tests, must not be used in production code.
package motetest

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dsnet/golib/memfile"
	piondtls "github.com/pion/dtls/v2"
	"github.com/plgd-dev/go-coap/v2/dtls"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/plgd-dev/go-coap/v2/mux"
	coapNet "github.com/plgd-dev/go-coap/v2/net"
	"github.com/plgd-dev/go-coap/v2/udp"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/plgd-dev/cinfo/internal/mote"
)

// PSKIdentityHint is the identity hint announced by a secure mote.
const PSKIdentityHint = "cinfo mote"

// Mote answers GET /w with a fixed byte payload, like the whisper resource of a board.
type Mote struct {
	Scheme  string
	Address string
	Port    int

	requests atomic.Int32
	delay    atomic.Duration

	mutex   sync.Mutex
	payload []byte
}

// New starts a plain coap mote on the IPv6 loopback and stops it when the test ends.
func New(t testing.TB, payload []byte) *Mote {
	t.Helper()

	l, err := coapNet.NewListenUDP("udp6", "[::1]:0")
	require.NoError(t, err)

	m := newMote(mote.SchemeCoAP, l.LocalAddr(), payload)
	s := udp.NewServer(udp.WithMux(m.router()))
	serve(t, func() error { return s.Serve(l) }, s.Stop, l.Close)
	return m
}

// NewSecure starts a coaps mote that accepts the pre-shared key psk.
func NewSecure(t testing.TB, payload []byte, psk []byte) *Mote {
	t.Helper()

	key := append([]byte(nil), psk...)
	dtlsCfg := &piondtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			return key, nil
		},
		PSKIdentityHint: []byte(PSKIdentityHint),
		CipherSuites:    []piondtls.CipherSuiteID{piondtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
	l, err := coapNet.NewDTLSListener("udp6", "[::1]:0", dtlsCfg)
	require.NoError(t, err)

	m := newMote(mote.SchemeCoAPS, l.Addr(), payload)
	s := dtls.NewServer(dtls.WithMux(m.router()))
	serve(t, func() error { return s.Serve(l) }, s.Stop, l.Close)
	return m
}

func newMote(scheme string, addr net.Addr, payload []byte) *Mote {
	return &Mote{
		Scheme:  scheme,
		Address: "::1",
		Port:    addr.(*net.UDPAddr).Port,
		payload: append([]byte(nil), payload...),
	}
}

func serve(t testing.TB, run func() error, stop func(), closeListener func() error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errS := run()
		require.NoError(t, errS)
	}()
	t.Cleanup(func() {
		stop()
		wg.Wait()
		_ = closeListener()
	})
}

func (m *Mote) router() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/"+mote.DefaultResource, mux.HandlerFunc(m.serveResource))
	return router
}

func (m *Mote) serveResource(w mux.ResponseWriter, r *mux.Message) {
	m.requests.Inc()
	if d := m.delay.Load(); d > 0 {
		time.Sleep(d)
	}
	m.mutex.Lock()
	body := memfile.New(append([]byte(nil), m.payload...))
	m.mutex.Unlock()
	_ = w.SetResponse(codes.Content, message.AppOctets, body)
}

// URI returns the request URI of resource on this mote.
func (m *Mote) URI(resource string) string {
	return mote.FormatURI(m.Scheme, m.Address, m.Port, resource)
}

// Addr returns host:port of the mote.
func (m *Mote) Addr() string {
	return net.JoinHostPort(m.Address, strconv.Itoa(m.Port))
}

// SetPayload replaces the representation served by the resource.
func (m *Mote) SetPayload(p []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.payload = append([]byte(nil), p...)
}

// SetDelay makes the resource handler wait before answering.
func (m *Mote) SetDelay(d time.Duration) {
	m.delay.Store(d)
}

// Requests returns how many requests reached the resource handler.
func (m *Mote) Requests() int {
	return int(m.requests.Load())
}
