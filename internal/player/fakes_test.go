package player

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/rudebot/rudebot/internal/repository"
	"github.com/rudebot/rudebot/internal/resolver"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	items  []repository.QueueItem
	err    error
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memStore) AddItem(_ context.Context, roomID, requesterID, title, sourceRef, resolvedRef string) (repository.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return repository.QueueItem{}, m.err
	}
	m.nextID++
	it := repository.QueueItem{
		ID: m.nextID, RoomID: roomID, RequesterID: requesterID,
		Title: title, SourceRef: sourceRef, ResolvedRef: resolvedRef, AddedAt: time.Now(),
	}
	m.items = append(m.items, it)
	return it, nil
}

func (m *memStore) RemoveItem(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListItems(_ context.Context, roomID string) ([]repository.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []repository.QueueItem{}
	for _, it := range m.items {
		if it.RoomID == roomID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CountItems(ctx context.Context, roomID string) (int, error) {
	items, err := m.ListItems(ctx, roomID)
	return len(items), err
}

func (m *memStore) SetResourcePath(_ context.Context, id int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].LocalResourcePath == "" {
			m.items[i].LocalResourcePath = path
		}
	}
	return nil
}

func (m *memStore) PurgeRoom(_ context.Context, roomID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	kept := m.items[:0]
	var n int64
	for _, it := range m.items {
		if it.RoomID == roomID {
			n++
			continue
		}
		kept = append(kept, it)
	}
	m.items = kept
	return n, nil
}

func (m *memStore) titles(roomID string) []string {
	items, _ := m.ListItems(context.Background(), roomID)
	out := []string{}
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

type fakeResolver struct {
	mu         sync.Mutex
	lookupErr  map[string]error
	resolveErr map[string]error
	gates      map[string]chan struct{}
	urls       map[string]string // lookup ref -> canonical page
	resolved   []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		lookupErr:  map[string]error{},
		resolveErr: map[string]error{},
		gates:      map[string]chan struct{}{},
		urls:       map[string]string{},
	}
}

// hold makes Resolve for ref block until the returned func is called.
func (f *fakeResolver) hold(ref string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[ref] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeResolver) Lookup(_ context.Context, ref string) (resolver.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookupErr[ref]; err != nil {
		return resolver.Metadata{}, err
	}
	return resolver.Metadata{Title: ref, URL: f.urls[ref]}, nil
}

func (f *fakeResolver) Resolve(ctx context.Context, itemID int64, ref string) (string, error) {
	f.mu.Lock()
	gate, err := f.gates[ref], f.resolveErr[ref]
	f.resolved = append(f.resolved, ref)
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return audioPath(itemID), nil
}

func (f *fakeResolver) resolvedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resolved...)
}

func audioPath(id int64) string { return "/audio/" + strconv.FormatInt(id, 10) }

type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	hang       bool // Connect waits for its context to end
	lateStop   bool // Stop returns before the completion fires
	conns      []*fakeConn
	plays      []string
	active     int
	maxActive  int
	busy       int
}

func (t *fakeTransport) Connect(ctx context.Context, _ string, channelID string) (Connection, error) {
	t.mu.Lock()
	hang := t.hang
	t.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	c := &fakeConn{t: t, channel: channelID}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) playsSoFar() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.plays...)
}

func (t *fakeTransport) connections() []*fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConn(nil), t.conns...)
}

// finishCurrent ends whichever play is running, as if the file ran out.
func (t *fakeTransport) finishCurrent(err error) bool {
	for _, c := range t.connections() {
		if c.finish(err) {
			return true
		}
	}
	return false
}

func (t *fakeTransport) stats() (maxActive, busy int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxActive, t.busy
}

type fakeConn struct {
	t       *fakeTransport
	channel string

	mu           sync.Mutex
	onComplete   func(error)
	paused       bool
	disconnected bool
}

func (c *fakeConn) ChannelID() string { return c.channel }

func (c *fakeConn) Play(path string, onComplete func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.onComplete != nil || c.disconnected {
		c.t.busy++
		return errors.New("busy")
	}
	c.onComplete = onComplete
	c.paused = false
	c.t.plays = append(c.t.plays, path)
	c.t.active++
	if c.t.active > c.t.maxActive {
		c.t.maxActive = c.t.active
	}
	return nil
}

func (c *fakeConn) finish(err error) bool {
	c.mu.Lock()
	cb := c.onComplete
	c.onComplete = nil
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	c.t.mu.Lock()
	c.t.active--
	c.t.mu.Unlock()
	cb(err)
	return true
}

func (c *fakeConn) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *fakeConn) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *fakeConn) Stop() error {
	c.t.mu.Lock()
	late := c.t.lateStop
	c.t.mu.Unlock()
	if !late {
		c.finish(nil)
	}
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.finish(nil)
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *fakeConn) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

type mapLocator map[string]string

func (m mapLocator) VoiceChannel(_, userID string) (string, bool) {
	ch, ok := m[userID]
	return ch, ok
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type harness struct {
	s        *Scheduler
	store    *memStore
	resolver *fakeResolver
	tr       *fakeTransport
	notes    *recordingNotifier
}

func newHarness(t *testing.T, locator VoiceLocator) *harness {
	t.Helper()
	return newHarnessWith(t, locator, nil)
}

func newHarnessWith(t *testing.T, locator VoiceLocator, tune func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store:    &memStore{},
		resolver: newFakeResolver(),
		tr:       &fakeTransport{},
		notes:    &recordingNotifier{},
	}
	opts := Options{
		Capacity:       10,
		ResolveTimeout: 5 * time.Second,
		ConnectTimeout: time.Second,
		Locator:        locator,
		Notifier:       h.notes,
	}
	if tune != nil {
		tune(&opts)
	}
	h.s = NewScheduler(h.store, h.resolver, h.tr, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.s.Close(ctx))
	})
	return h
}

func inVoice() VoiceLocator { return mapLocator{"alice": "voice-1", "bob": "voice-1"} }

func (h *harness) add(t *testing.T, roomID, ref string) Reply {
	t.Helper()
	reply, err := h.s.Add(context.Background(), roomID, "alice", ref)
	require.NoError(t, err)
	return reply
}

func (h *harness) state(t *testing.T, roomID string) State {
	t.Helper()
	st, err := h.s.State(context.Background(), roomID)
	require.NoError(t, err)
	return st
}

func (h *harness) list(t *testing.T, roomID string) string {
	t.Helper()
	reply, err := h.s.ListQueue(context.Background(), roomID)
	require.NoError(t, err)
	return reply.Text
}
