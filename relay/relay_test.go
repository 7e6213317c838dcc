// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/crypto/oaep"
	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/onion"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/core/wire"
)

type testResolver struct {
	sync.Mutex
	relays map[uint32]string
	users  map[uint32]string
}

func (r *testResolver) RelayURL(nodeID uint32) string {
	r.Lock()
	defer r.Unlock()
	return r.relays[nodeID]
}

func (r *testResolver) UserURL(userID uint32) string {
	r.Lock()
	defer r.Unlock()
	return r.users[userID]
}

func (r *testResolver) setUser(userID uint32, url string) {
	r.Lock()
	defer r.Unlock()
	r.users[userID] = url
}

type testRegistry struct {
	sync.Mutex
	errs  []error
	calls int
}

func (c *testRegistry) Register(ctx context.Context, nodeID uint32, publicKey *oaep.PublicKey) error {
	c.Lock()
	defer c.Unlock()
	c.calls++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func (c *testRegistry) Nodes(ctx context.Context) ([]pki.NodeRecord, error) {
	return nil, nil
}

// testUser records deliveries.
type testUser struct {
	sync.Mutex
	messages []string
	status   int
}

func (u *testUser) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body wire.DeliverRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Message == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	u.Lock()
	defer u.Unlock()
	u.messages = append(u.messages, *body.Message)
	if u.status != 0 {
		w.WriteHeader(u.status)
		return
	}
	wire.WriteSuccess(w)
}

func (u *testUser) received() []string {
	u.Lock()
	defer u.Unlock()
	return append([]string(nil), u.messages...)
}

type testNetwork struct {
	relays   map[uint32]*Relay
	servers  []*httptest.Server
	resolver *testResolver
	user     *testUser
}

func (n *testNetwork) close() {
	for _, s := range n.servers {
		s.Close()
	}
	for _, r := range n.relays {
		r.Shutdown()
	}
}

func (n *testNetwork) hops(ids ...uint32) []onion.Hop {
	var hops []onion.Hop
	for _, id := range ids {
		hops = append(hops, onion.Hop{NodeID: id, PublicKey: n.relays[id].PublicKey()})
	}
	return hops
}

func newTestNetwork(t *testing.T, ids ...uint32) *testNetwork {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	cfg := config.Default()
	cfg.Relay.ForwardTimeout = 2000

	n := &testNetwork{
		relays: make(map[uint32]*Relay),
		resolver: &testResolver{
			relays: make(map[uint32]string),
			users:  make(map[uint32]string),
		},
		user: new(testUser),
	}
	for _, id := range ids {
		r, err := newRelay(cfg, id, logBackend, new(testRegistry), n.resolver)
		require.NoError(err)
		s := httptest.NewServer(r.Handler())
		n.relays[id] = r
		n.servers = append(n.servers, s)
		n.resolver.relays[id] = s.URL
	}
	us := httptest.NewServer(n.user)
	n.servers = append(n.servers, us)
	n.resolver.setUser(1, us.URL)
	return n
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url+wire.PathMessage, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func forwardRequest(pkt string, circuit []uint32, index int) *wire.ForwardRequest {
	return &wire.ForwardRequest{
		Message: &pkt,
		Circuit: circuit,
		Index:   &index,
	}
}

func TestForwardAndDeliver(t *testing.T) {
	require := require.New(t)

	n := newTestNetwork(t, 4, 9, 2)
	defer n.close()

	circuit := []uint32{4, 9, 2}
	pkt, err := onion.Build(rand.Reader, n.hops(circuit...), 1, "hello")
	require.NoError(err)

	resp := post(t, n.resolver.relays[4], forwardRequest(pkt.String(), circuit, 0))
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal([]string{"hello"}, n.user.received())

	first, second, last := n.relays[4], n.relays[9], n.relays[2]
	require.Equal(pkt.String(), *first.state.encrypted())
	require.Equal(uint32(9), *first.state.destination())

	// Each relay hands on exactly what it decrypted.
	require.Equal(*first.state.decrypted(), *second.state.encrypted())
	require.Equal(uint32(2), *second.state.destination())
	require.Equal(*second.state.decrypted(), *last.state.encrypted())

	require.Equal("hello", *last.state.decrypted())
	require.Equal(uint32(1), *last.state.destination())
}

func TestTamperedPacket(t *testing.T) {
	require := require.New(t)

	n := newTestNetwork(t, 1, 2, 3)
	defer n.close()

	circuit := []uint32{1, 2, 3}
	pkt, err := onion.Build(rand.Reader, n.hops(circuit...), 1, "hello")
	require.NoError(err)
	pkt.Ciphertext[len(pkt.Ciphertext)/2] ^= 0x01

	resp := post(t, n.resolver.relays[1], forwardRequest(pkt.String(), circuit, 0))
	require.Equal(http.StatusBadRequest, resp.StatusCode)
	require.True(errors.Is(wire.ResponseError(resp), failure.ErrDecryption))

	require.Nil(n.relays[1].state.encrypted())
	require.Nil(n.relays[2].state.encrypted())
	require.Empty(n.user.received())
}

func TestMalformedRequests(t *testing.T) {
	require := require.New(t)

	n := newTestNetwork(t, 1, 2, 3)
	defer n.close()

	circuit := []uint32{1, 2, 3}
	pkt, err := onion.Build(rand.Reader, n.hops(circuit...), 1, "hello")
	require.NoError(err)
	msg := pkt.String()
	url := n.resolver.relays[1]

	for name, req := range map[string]*wire.ForwardRequest{
		"missing message":   {Circuit: circuit, Index: forwardRequest("", nil, 0).Index},
		"missing circuit":   forwardRequest(msg, nil, 0),
		"missing index":     {Message: &msg, Circuit: circuit},
		"index too large":   forwardRequest(msg, circuit, 3),
		"negative index":    forwardRequest(msg, circuit, -1),
		"not this relay":    forwardRequest(msg, []uint32{2, 1, 3}, 0),
		"next hop mismatch": forwardRequest(msg, []uint32{1, 3, 2}, 0),
		"forward at end":    forwardRequest(msg, []uint32{3, 1}, 1),
		"not a packet":      forwardRequest("!!", circuit, 0),
	} {
		resp := post(t, url, req)
		require.Equal(http.StatusBadRequest, resp.StatusCode, name)
		require.True(errors.Is(wire.ResponseError(resp), failure.ErrMalformedRequest), name)
	}

	resp, err := http.Post(url+wire.PathMessage, "application/json", bytes.NewReader([]byte("{")))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusBadRequest, resp.StatusCode)

	require.Nil(n.relays[1].state.encrypted())
	require.Empty(n.user.received())
}

func TestPayloadBeforeEnd(t *testing.T) {
	require := require.New(t)

	n := newTestNetwork(t, 1, 2, 3)
	defer n.close()

	pkt, err := onion.Seal(rand.Reader, n.relays[1].PublicKey(), &onion.Payload{Destination: 1, Message: "early"})
	require.NoError(err)

	resp := post(t, n.resolver.relays[1], forwardRequest(pkt.String(), []uint32{1, 2, 3}, 0))
	require.Equal(http.StatusBadRequest, resp.StatusCode)
	require.True(errors.Is(wire.ResponseError(resp), failure.ErrMalformedRequest))
	require.Empty(n.user.received())
}

func TestDownstreamFailure(t *testing.T) {
	require := require.New(t)

	n := newTestNetwork(t, 1, 2, 3)
	defer n.close()
	n.user.Lock()
	n.user.status = http.StatusInternalServerError
	n.user.Unlock()

	circuit := []uint32{1, 2, 3}
	pkt, err := onion.Build(rand.Reader, n.hops(circuit...), 1, "hello")
	require.NoError(err)

	resp := post(t, n.resolver.relays[1], forwardRequest(pkt.String(), circuit, 0))
	require.Equal(http.StatusBadGateway, resp.StatusCode)
	require.True(errors.Is(wire.ResponseError(resp), failure.ErrDelivery))

	// Every hop recorded its layer before handing it on.
	require.Equal("hello", *n.relays[3].state.decrypted())

	// An unreachable next hop is a delivery failure too.
	n.resolver.setUser(1, "http://127.0.0.1:1")
	resp = post(t, n.resolver.relays[3], forwardRequest(*n.relays[3].state.encrypted(), circuit, 2))
	require.Equal(http.StatusBadGateway, resp.StatusCode)
}

func TestAccessors(t *testing.T) {
	require := require.New(t)

	n := newTestNetwork(t, 1)
	defer n.close()
	url := n.resolver.relays[1]

	for _, path := range []string{
		wire.PathGetLastReceivedEncryptedMessage,
		wire.PathGetLastReceivedDecryptedMessage,
		wire.PathGetLastMessageDestination,
	} {
		resp, err := http.Get(url + path)
		require.NoError(err)
		var body map[string]interface{}
		require.NoError(json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		v, ok := body["result"]
		require.True(ok, path)
		require.Nil(v, path)
	}

	resp, err := http.Get(url + wire.PathGetPrivateKey)
	require.NoError(err)
	defer resp.Body.Close()
	var sr wire.StringResult
	require.NoError(json.NewDecoder(resp.Body).Decode(&sr))
	sk, err := oaep.PrivateKeyFromString(*sr.Result)
	require.NoError(err)
	require.True(sk.PublicKey().Equal(n.relays[1].PublicKey()))
}

func TestRegister(t *testing.T) {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)
	cfg := config.Default()
	cfg.Relay.RegistrationAttempts = 3
	cfg.Relay.RegistrationBackoff = 1

	t.Run("transient errors are retried", func(t *testing.T) {
		reg := &testRegistry{errs: []error{syscall.ECONNREFUSED, syscall.ECONNREFUSED}}
		r, err := newRelay(cfg, 1, logBackend, reg, nil)
		require.NoError(err)
		defer r.Shutdown()

		require.NoError(r.Register(context.Background()))
		require.Equal(3, reg.calls)
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		reg := &testRegistry{errs: []error{syscall.ECONNREFUSED, syscall.ECONNREFUSED, syscall.ECONNREFUSED}}
		r, err := newRelay(cfg, 1, logBackend, reg, nil)
		require.NoError(err)
		defer r.Shutdown()

		require.Error(r.Register(context.Background()))
		require.Equal(3, reg.calls)
	})

	t.Run("rejection aborts", func(t *testing.T) {
		reg := &testRegistry{errs: []error{failure.New(failure.KindInvalidRegistration, "HTTP 400: missing pubKey")}}
		r, err := newRelay(cfg, 1, logBackend, reg, nil)
		require.NoError(err)
		defer r.Shutdown()

		err = r.Register(context.Background())
		require.True(errors.Is(err, failure.ErrInvalidRegistration))
		require.Equal(1, reg.calls)
	})
}
