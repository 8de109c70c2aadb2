package relay

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwrelay/internal/adapter"
	"hwrelay/internal/domain"
	"hwrelay/internal/metrics"
	"hwrelay/internal/repository/sqlite"
)

const (
	waitTimeout = 2 * time.Second
	tick        = 5 * time.Millisecond
)

// fakeAdapter lets tests drive channel events directly
type fakeAdapter struct {
	events chan adapter.Event
	ready  atomic.Bool

	mu   sync.Mutex
	sent []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{events: make(chan adapter.Event, 16)}
}

func (f *fakeAdapter) Mode() domain.TransportMode      { return domain.TransportRemote }
func (f *fakeAdapter) Target() string                  { return "ws://device.test/ws" }
func (f *fakeAdapter) Start(ctx context.Context) error { return nil }
func (f *fakeAdapter) IsReady() bool                   { return f.ready.Load() }
func (f *fakeAdapter) Events() <-chan adapter.Event    { return f.events }
func (f *fakeAdapter) Close() error                    { return nil }

func (f *fakeAdapter) Send(cmd domain.Command) bool {
	if !f.ready.Load() {
		return false
	}
	f.mu.Lock()
	f.sent = append(f.sent, cmd.String())
	f.mu.Unlock()
	return true
}

func (f *fakeAdapter) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeAdapter) connect() {
	f.ready.Store(true)
	f.events <- adapter.Event{Kind: adapter.EventConnecting}
	f.events <- adapter.Event{Kind: adapter.EventConnected}
}

func (f *fakeAdapter) disconnect() {
	f.ready.Store(false)
	f.events <- adapter.Event{Kind: adapter.EventDisconnected}
}

type harness struct {
	relay   *Relay
	adapter *fakeAdapter
	url     string
}

func startRelay(t *testing.T, deps Deps) (*Relay, string) {
	t.Helper()

	r := New(deps)
	srv := httptest.NewServer(r.Hub())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
		assert.NoError(t, r.Close())
		srv.Close()
	})

	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()

	fake := newFakeAdapter()
	deps.Adapter = fake
	r, url := startRelay(t, deps)
	return &harness{relay: r, adapter: fake, url: url}
}

// browser dials and waits for the dispatcher to register the client
func (h *harness) browser(t *testing.T) *websocket.Conn {
	t.Helper()
	before := h.relay.Hub().Count()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.relay.Hub().Count() == before+1 }, waitTimeout, tick)
	return conn
}

func (h *harness) waitReady(t *testing.T, ready bool) {
	t.Helper()
	require.Eventually(t, func() bool { return h.relay.Status().HardwareReady == ready }, waitTimeout, tick)
}

func readEvent(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func expectNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %s", data)
}

const (
	readyJSON = `{"type":"hardware_ready"}`
	lostJSON  = `{"type":"hardware_lost"}`
)

func TestLateBrowserGetsReadySnapshotOnce(t *testing.T) {
	h := newHarness(t, Deps{})
	h.adapter.connect()
	h.waitReady(t, true)

	conn := h.browser(t)
	assert.Equal(t, readyJSON, readEvent(t, conn))
	expectNoMessage(t, conn)
}

func TestBrowserGetsNothingWhileHardwareDown(t *testing.T) {
	h := newHarness(t, Deps{})

	conn := h.browser(t)
	expectNoMessage(t, conn)
}

func TestLivenessBroadcastReachesEveryBrowserOnce(t *testing.T) {
	h := newHarness(t, Deps{})
	a := h.browser(t)
	b := h.browser(t)

	h.adapter.connect()
	assert.Equal(t, readyJSON, readEvent(t, a))
	assert.Equal(t, readyJSON, readEvent(t, b))

	h.adapter.disconnect()
	assert.Equal(t, lostJSON, readEvent(t, a))
	assert.Equal(t, lostJSON, readEvent(t, b))

	// Repeated close is not a transition
	h.adapter.events <- adapter.Event{Kind: adapter.EventDisconnected}
	expectNoMessage(t, a)
	expectNoMessage(t, b)

	m := h.relay.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues(string(domain.HardwareReady))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues(string(domain.HardwareLost))))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Broadcasts))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HardwareUp))
}

func TestFailedAttemptsAreSilent(t *testing.T) {
	h := newHarness(t, Deps{})
	conn := h.browser(t)

	for range 3 {
		h.adapter.events <- adapter.Event{Kind: adapter.EventConnecting}
		h.adapter.events <- adapter.Event{Kind: adapter.EventDisconnected}
	}
	expectNoMessage(t, conn)
	assert.Equal(t, domain.SessionDisconnected, h.relay.Status().State)
}

func TestCommandsRelayedWhenReady(t *testing.T) {
	h := newHarness(t, Deps{})
	conn := h.browser(t)
	h.adapter.connect()
	require.Equal(t, readyJSON, readEvent(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("LED:ON")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("LED:OFF")))

	require.Eventually(t, func() bool { return len(h.adapter.Sent()) == 2 }, waitTimeout, tick)
	assert.Equal(t, []string{"LED:ON", "LED:OFF"}, h.adapter.Sent())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.relay.Metrics().Commands.WithLabelValues(metrics.OutcomeRelayed)))
}

func TestCommandsDroppedWhenNotReady(t *testing.T) {
	h := newHarness(t, Deps{})
	conn := h.browser(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("LED:ON")))

	dropped := h.relay.Metrics().Commands.WithLabelValues(metrics.OutcomeDropped)
	require.Eventually(t, func() bool { return testutil.ToFloat64(dropped) == 1 }, waitTimeout, tick)
	assert.Empty(t, h.adapter.Sent())
	expectNoMessage(t, conn)
}

func TestHardwareFramesStayOnRelay(t *testing.T) {
	h := newHarness(t, Deps{})
	conn := h.browser(t)
	h.adapter.connect()
	require.Equal(t, readyJSON, readEvent(t, conn))

	h.adapter.events <- adapter.Event{Kind: adapter.EventReceived, Data: []byte("BTN:1")}

	received := h.relay.Metrics().Received
	require.Eventually(t, func() bool { return testutil.ToFloat64(received) == 1 }, waitTimeout, tick)
	expectNoMessage(t, conn)
}

func TestRegistryFollowsOpenConnections(t *testing.T) {
	h := newHarness(t, Deps{})
	a := h.browser(t)
	b := h.browser(t)
	_ = h.browser(t)

	a.Close()
	b.Close()

	require.Eventually(t, func() bool { return h.relay.Hub().Count() == 1 }, waitTimeout, tick)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.relay.Metrics().Clients))
}

func TestStatus(t *testing.T) {
	h := newHarness(t, Deps{})
	_ = h.browser(t)

	s := h.relay.Status()
	assert.Equal(t, domain.TransportRemote, s.Mode)
	assert.Equal(t, "ws://device.test/ws", s.Target)
	assert.False(t, s.HardwareReady)
	assert.Equal(t, 1, s.Clients)
	require.Len(t, s.Browsers, 1)
	assert.NotEmpty(t, s.Browsers[0].ID)
	assert.Nil(t, s.LastTransition)

	h.adapter.connect()
	h.waitReady(t, true)

	s = h.relay.Status()
	assert.Equal(t, domain.SessionConnected, s.State)
	require.NotNil(t, s.LastTransition)
	assert.Equal(t, domain.SessionConnected, s.LastTransition.To)
}

func TestJournalRecordsActivity(t *testing.T) {
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)

	h := newHarness(t, Deps{Journal: repo, JournalRetain: 100})
	conn := h.browser(t)
	h.adapter.connect()
	require.Equal(t, readyJSON, readEvent(t, conn))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("LED:ON")))

	kinds := func() []domain.JournalKind {
		entries, err := h.relay.Journal().Recent(context.Background(), 10)
		if err != nil {
			return nil
		}
		out := make([]domain.JournalKind, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Kind)
		}
		return out
	}
	require.Eventually(t, func() bool { return len(kinds()) == 2 }, waitTimeout, tick)
	assert.Equal(t, []domain.JournalKind{domain.JournalRelayed, domain.JournalLiveness}, kinds())
}

func TestNewDefaultsToNoneAdapter(t *testing.T) {
	r := New(Deps{})
	s := r.Status()
	assert.Equal(t, domain.TransportNone, s.Mode)
	assert.Nil(t, r.Journal())
	assert.NoError(t, r.Close())
}

// stuckConn is a device socket that accepts no writes until closed
type stuckConn struct {
	writes    atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *stuckConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, net.ErrClosed
}

func (c *stuckConn) WriteMessage(int, []byte) error {
	c.writes.Add(1)
	<-c.closed
	return net.ErrClosed
}

func (c *stuckConn) SetWriteDeadline(time.Time) error { return nil }

func (c *stuckConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func TestStalledHardwareWriteDoesNotBlockBrowsers(t *testing.T) {
	conn := &stuckConn{closed: make(chan struct{})}
	remote := adapter.NewRemoteAdapter(adapter.RemoteConfig{
		URL: "ws://device.test/ws",
		Dial: func(ctx context.Context, url string) (adapter.Conn, error) {
			return conn, nil
		},
	})

	r, url := startRelay(t, Deps{Adapter: remote})
	h := &harness{relay: r, url: url}
	h.waitReady(t, true)

	a := h.browser(t)
	require.Equal(t, readyJSON, readEvent(t, a))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("LED:ON")))
	require.Eventually(t, func() bool { return conn.writes.Load() == 1 }, waitTimeout, tick)

	// The hardware write is now stuck; the dispatcher must keep serving
	start := time.Now()
	b := h.browser(t)
	assert.Equal(t, readyJSON, readEvent(t, b))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("LED:OFF")))
	relayed := r.Metrics().Commands.WithLabelValues(metrics.OutcomeRelayed)
	require.Eventually(t, func() bool { return testutil.ToFloat64(relayed) == 2 }, 500*time.Millisecond, tick)
	assert.Equal(t, 2, r.Hub().Count())
}
