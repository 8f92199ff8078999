package mote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	piondtls "github.com/pion/dtls/v2"
	"github.com/plgd-dev/go-coap/v2/dtls"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/net/blockwise"
	"github.com/plgd-dev/go-coap/v2/udp"
	"github.com/plgd-dev/go-coap/v2/udp/message/pool"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultLocalPort is the UDP port the probe sends from.
const DefaultLocalPort = 61618

// Client performs a GET on a CoAP URI and returns the payload.
type Client interface {
	Get(ctx context.Context, uri string) ([]byte, error)
	Close() error
}

type conn interface {
	Get(ctx context.Context, path string, opts ...message.Option) (*pool.Message, error)
	Close() error
}

type clientOptions struct {
	localPort                      int
	dialTimeout                    time.Duration
	transmissionNStart             time.Duration
	transmissionAcknowledgeTimeout time.Duration
	transmissionMaxRetransmit      uint32
	blockwiseEnable                bool
	blockwiseSZX                   blockwise.SZX
	blockwiseTransferTimeout       time.Duration
	security                       Security
	log                            *zap.SugaredLogger
}

var defaultClientOptions = clientOptions{
	localPort:                      DefaultLocalPort,
	dialTimeout:                    time.Second * 3,
	transmissionNStart:             time.Second,
	transmissionAcknowledgeTimeout: time.Second * 2,
	transmissionMaxRetransmit:      4,
	blockwiseEnable:                true,
	blockwiseSZX:                   blockwise.SZX1024,
	blockwiseTransferTimeout:       time.Second * 3,
}

// Option configures a CoAPClient.
type Option func(*clientOptions)

// WithLocalPort binds outgoing requests to the given UDP port; 0 picks an ephemeral one.
func WithLocalPort(port int) Option {
	return func(o *clientOptions) {
		o.localPort = port
	}
}

// WithTransmission sets the retransmission parameters of confirmable requests.
// They are applied by the coap library, the client itself never resends.
func WithTransmission(nstart, ackTimeout time.Duration, maxRetransmit uint32) Option {
	return func(o *clientOptions) {
		o.transmissionNStart = nstart
		o.transmissionAcknowledgeTimeout = ackTimeout
		o.transmissionMaxRetransmit = maxRetransmit
	}
}

// WithBlockwise configures block-wise transfers.
func WithBlockwise(enable bool, szx blockwise.SZX, transferTimeout time.Duration) Option {
	return func(o *clientOptions) {
		o.blockwiseEnable = enable
		o.blockwiseSZX = szx
		o.blockwiseTransferTimeout = transferTimeout
	}
}

// WithSecurity sets the credentials used for coaps targets.
func WithSecurity(s Security) Option {
	return func(o *clientOptions) {
		o.security = s
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *clientOptions) {
		o.log = log
	}
}

// CoAPClient keeps one connection per mote, all sending from the same local port.
type CoAPClient struct {
	opts   clientOptions
	mutex  sync.Mutex
	conns  map[string]conn
	closed atomic.Bool
}

func NewCoAPClient(opts ...Option) *CoAPClient {
	cfg := defaultClientOptions
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop().Sugar()
	}
	return &CoAPClient{
		opts:  cfg,
		conns: make(map[string]conn),
	}
}

// Get issues exactly one GET request to uri.
func (c *CoAPClient) Get(ctx context.Context, uri string) ([]byte, error) {
	t, err := ParseTarget(uri)
	if err != nil {
		return nil, err
	}
	cc, err := c.connection(t)
	if err != nil {
		return nil, err
	}
	opts := make(message.Options, 0, len(t.Queries))
	for _, q := range t.Queries {
		opts = append(opts, message.Option{ID: message.URIQuery, Value: []byte(q)})
	}
	resp, err := cc.Get(ctx, t.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot get %v: %w", uri, err)
	}
	payload, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("cannot read response of %v: %w", uri, err)
	}
	if !isSuccess(resp.Code()) {
		return nil, &StatusError{URI: uri, Code: resp.Code(), Payload: payload}
	}
	return payload, nil
}

// Close releases all connections. It is safe to call more than once.
func (c *CoAPClient) Close() error {
	if !c.closed.CAS(false, true) {
		return nil
	}
	c.mutex.Lock()
	conns := c.conns
	c.conns = make(map[string]conn)
	c.mutex.Unlock()

	var errs []error
	for addr, cc := range conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cannot close connection to %v: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (c *CoAPClient) connection(t Target) (conn, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("cannot dial %v: client is closed", t.Addr())
	}
	key := t.Scheme + "://" + t.Addr()
	c.mutex.Lock()
	cc, ok := c.conns[key]
	c.mutex.Unlock()
	if ok {
		return cc, nil
	}

	cc, err := c.dial(t)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if existing, ok := c.conns[key]; ok {
		if errC := cc.Close(); errC != nil {
			c.opts.log.Debugf("cannot close duplicate connection to %v: %v", key, errC)
		}
		return existing, nil
	}
	c.conns[key] = cc
	return cc, nil
}

func (c *CoAPClient) dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   c.opts.dialTimeout,
		LocalAddr: &net.UDPAddr{Port: c.opts.localPort},
		Control: func(network, address string, raw syscall.RawConn) error {
			var errS error
			if err := raw.Control(func(fd uintptr) {
				errS = socketReuseAddr(fd)
			}); err != nil {
				return err
			}
			return errS
		},
	}
}

func (c *CoAPClient) onError(err error) {
	c.opts.log.Warnf("coap: %v", err)
}

func (c *CoAPClient) dial(t Target) (conn, error) {
	if t.Secure() {
		cfg, err := c.opts.security.DTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("cannot dial %v: %w", t.Addr(), err)
		}
		return c.dialDTLS(t, cfg)
	}
	cc, err := udp.Dial(t.Addr(),
		udp.WithDialer(c.dialer()),
		udp.WithErrors(c.onError),
		udp.WithTransmission(c.opts.transmissionNStart, c.opts.transmissionAcknowledgeTimeout, c.opts.transmissionMaxRetransmit),
		udp.WithBlockwise(c.opts.blockwiseEnable, c.opts.blockwiseSZX, c.opts.blockwiseTransferTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %v: %w", t.Addr(), err)
	}
	c.opts.log.Debugf("connected to %v from local port %v", t.Addr(), c.opts.localPort)
	return cc, nil
}

func (c *CoAPClient) dialDTLS(t Target, cfg *piondtls.Config) (conn, error) {
	cc, err := dtls.Dial(t.Addr(), cfg,
		dtls.WithDialer(c.dialer()),
		dtls.WithErrors(c.onError),
		dtls.WithTransmission(c.opts.transmissionNStart, c.opts.transmissionAcknowledgeTimeout, c.opts.transmissionMaxRetransmit),
		dtls.WithBlockwise(c.opts.blockwiseEnable, c.opts.blockwiseSZX, c.opts.blockwiseTransferTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %v: %w", t.Addr(), err)
	}
	c.opts.log.Debugf("dtls session established with %v", t.Addr())
	return cc, nil
}

func readBody(resp *pool.Message) ([]byte, error) {
	body := resp.Body()
	if body == nil {
		return nil, nil
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(body)
}
