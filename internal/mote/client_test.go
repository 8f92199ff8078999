package mote_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plgd-dev/cinfo/internal/mote"
	"github.com/plgd-dev/cinfo/internal/motetest"
)

func newTestClient(t *testing.T, opts ...mote.Option) *mote.CoAPClient {
	t.Helper()
	opts = append([]mote.Option{
		mote.WithLocalPort(0),
		mote.WithLogger(zap.NewNop().Sugar()),
	}, opts...)
	c := mote.NewCoAPClient(opts...)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})
	return c
}

func TestCoAPClientGet(t *testing.T) {
	m := motetest.New(t, []byte("Hi mote"))
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	got, err := c.Get(ctx, m.URI(mote.DefaultResource))
	require.NoError(t, err)
	assert.Equal(t, []byte("Hi mote"), got)
	assert.Equal(t, "Hi mote", mote.DecodePayload(got))
	assert.Equal(t, 1, m.Requests())
}

func TestCoAPClientGetReusesConnection(t *testing.T) {
	m := motetest.New(t, []byte{72})
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	got, err := c.Get(ctx, m.URI(mote.DefaultResource))
	require.NoError(t, err)
	assert.Equal(t, []byte{72}, got)

	m.SetPayload([]byte{73})
	got, err = c.Get(ctx, m.URI(mote.DefaultResource))
	require.NoError(t, err)
	assert.Equal(t, []byte{73}, got)
	assert.Equal(t, 2, m.Requests())
}

func TestCoAPClientGetEmptyPayload(t *testing.T) {
	m := motetest.New(t, nil)
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	got, err := c.Get(ctx, m.URI(mote.DefaultResource))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCoAPClientGetNotFound(t *testing.T) {
	m := motetest.New(t, []byte("x"))
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	_, err := c.Get(ctx, m.URI("missing"))
	require.Error(t, err)
	var statusErr *mote.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, codes.NotFound, statusErr.Code)
	assert.Equal(t, 0, m.Requests())
}

func TestCoAPClientGetTimeoutIsNotRetried(t *testing.T) {
	m := motetest.New(t, []byte("late"))
	m.SetDelay(time.Millisecond * 500)
	c := newTestClient(t, mote.WithTransmission(time.Second, time.Second*5, 4))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
	defer cancel()
	_, err := c.Get(ctx, m.URI(mote.DefaultResource))
	require.Error(t, err)

	time.Sleep(time.Millisecond * 600)
	assert.Equal(t, 1, m.Requests())
}

func TestCoAPClientGetInvalidURI(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Get(context.Background(), "http://[::1]/w")
	require.ErrorIs(t, err, mote.ErrInvalidURI)
}

func TestCoAPClientClose(t *testing.T) {
	m := motetest.New(t, []byte("x"))
	c := mote.NewCoAPClient(mote.WithLocalPort(0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	_, err := c.Get(ctx, m.URI(mote.DefaultResource))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.Get(ctx, m.URI(mote.DefaultResource))
	require.Error(t, err)
}

func TestCoAPClientSharedLocalPort(t *testing.T) {
	m1 := motetest.New(t, []byte("one"))
	m2 := motetest.New(t, []byte("two"))
	// both connections are bound to the same port
	c := newTestClient(t, mote.WithLocalPort(freeUDPPort(t)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	got, err := c.Get(ctx, m1.URI(mote.DefaultResource))
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
	got, err = c.Get(ctx, m2.URI(mote.DefaultResource))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	l, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6loopback})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, l.Close())
	}()
	return l.LocalAddr().(*net.UDPAddr).Port
}

func TestCoAPClientGetSecure(t *testing.T) {
	psk := []byte{0xab, 0xc1, 0x23}
	m := motetest.NewSecure(t, []byte("Whisper\xff"), psk)
	c := newTestClient(t, mote.WithSecurity(mote.Security{PSKIdentity: "cinfo", PSK: psk}))

	uri := m.URI(mote.DefaultResource)
	require.True(t, strings.HasPrefix(uri, "coaps://[::1]:"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	got, err := c.Get(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, []byte("Whisper\xff"), got)
	assert.Equal(t, 1, m.Requests())
}

func TestCoAPClientGetSecureWithoutCredentials(t *testing.T) {
	m := motetest.NewSecure(t, []byte("x"), []byte{0x01})
	c := newTestClient(t)

	_, err := c.Get(context.Background(), m.URI(mote.DefaultResource))
	require.ErrorIs(t, err, mote.ErrNoCredentials)
	assert.Equal(t, 0, m.Requests())
}
