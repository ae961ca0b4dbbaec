package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"plainchat/internal/cache"
	"plainchat/internal/database/dbtest"
	"plainchat/internal/models"
	"plainchat/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event models.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

func (f frame) text(t *testing.T) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(f.Data, &s))
	return s
}

func (f frame) message(t *testing.T) models.Message {
	t.Helper()
	var m models.Message
	require.NoError(t, json.Unmarshal(f.Data, &m))
	return m
}

type roomFixture struct {
	db       *dbtest.DB
	mr       *miniredis.Miniredis
	presence *services.Presence
	messages *services.MessageStore
	manager  *Manager
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	f := &roomFixture{db: dbtest.New(), mr: mr}
	f.presence = services.NewPresence(c)
	f.messages = services.NewMessageStore(f.db, c)
	f.manager = NewManager(f.db, f.messages, f.presence, time.Minute)
	return f
}

func (f *roomFixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := f.db.CreateUser(context.Background(), name, "x")
	require.NoError(t, err)
	return u
}

func (f *roomFixture) room(t *testing.T, owner *models.User) uuid.UUID {
	t.Helper()
	g, err := f.db.CreateGroup(context.Background(), "room-"+owner.Username, owner.ID)
	require.NoError(t, err)
	return g.ID
}

// client returns an authenticated client with no socket behind it. Frames
// broadcast to it stay in its send queue.
func (f *roomFixture) client(t *testing.T, u *models.User) *Client {
	t.Helper()
	c := f.manager.NewClient(nil)
	require.NoError(t, c.Attach(u))
	require.NoError(t, f.presence.SetOnline(context.Background(), u.Username))
	return c
}

func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var fr frame
			require.NoError(t, json.Unmarshal(raw, &fr))
			out = append(out, fr)
		default:
			return out
		}
	}
}

func handle(t *testing.T, c *Client, ev Event) error {
	t.Helper()
	return c.Handle(context.Background(), ev)
}

func TestClient_StartsConnecting(t *testing.T) {
	f := newRoomFixture(t)
	c := f.manager.NewClient(nil)
	assert.Equal(t, StateConnecting, c.State())

	err := handle(t, c, Join{RoomID: uuid.New()})
	assert.ErrorIs(t, err, errNotAuthenticated)

	require.NoError(t, c.Attach(f.user(t, "alice")))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Error(t, c.Attach(f.user(t, "bob")))
}

func TestJoin_BroadcastsOnlineToRoom(t *testing.T) {
	f := newRoomFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a, b := f.client(t, alice), f.client(t, bob)

	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, b)

	require.NoError(t, handle(t, a, Join{RoomID: room}))
	assert.Equal(t, StateInRoom, a.State())

	for _, c := range []*Client{a, b} {
		frames := drain(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, models.EventOnline, frames[0].Event)
		assert.Equal(t, "alice", frames[0].text(t))
	}
}

func TestJoin_EvictsPreviousRoom(t *testing.T) {
	f := newRoomFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	room1, room2 := f.room(t, alice), f.room(t, carol)
	a, b, c := f.client(t, alice), f.client(t, bob), f.client(t, carol)

	require.NoError(t, handle(t, a, Join{RoomID: room1}))
	require.NoError(t, handle(t, b, Join{RoomID: room1}))
	require.NoError(t, handle(t, c, Join{RoomID: room2}))
	drain(t, a)
	drain(t, b)
	drain(t, c)

	require.NoError(t, handle(t, a, Join{RoomID: room2}))

	hub1, ok := f.manager.hub(room1)
	require.True(t, ok)
	assert.False(t, hub1.has(a))
	assert.Equal(t, 1, hub1.Len())

	got, _ := a.room()
	assert.Equal(t, room2, got)
	assert.Empty(t, drain(t, b))
	require.Len(t, drain(t, c), 1)

	require.NoError(t, handle(t, a, SendMessage{Text: "hello room2"}))
	assert.Empty(t, drain(t, b))
	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "hello room2", frames[0].message(t).Content)
}

func TestMessage_PersistBroadcastCache(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	before := time.Now().Add(-time.Second)
	require.NoError(t, handle(t, a, SendMessage{Text: "hi"}))

	var id uuid.UUID
	for _, c := range []*Client{a, b} {
		frames := drain(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, models.EventMessage, frames[0].Event)
		m := frames[0].message(t)
		assert.NotEqual(t, uuid.Nil, m.ID)
		assert.False(t, m.Date.Before(before))
		require.NotNil(t, m.Sender)
		assert.Equal(t, "alice", *m.Sender)
		assert.Equal(t, models.KindNormal, m.Kind)
		id = m.ID
	}

	stored, err := f.db.ListMessages(ctx, room)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].ID)

	list, err := f.mr.List(cache.MessagesKey(room))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInRoomEvents_RequireRoom(t *testing.T) {
	f := newRoomFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice)
	a := f.client(t, alice)

	for _, ev := range []Event{SendMessage{Text: "hi"}, AddUser{Username: "bob"}, Leave{}, Typing{Started: true}, Kick{Username: "bob"}} {
		assert.ErrorIs(t, handle(t, a, ev), errNotInRoom, ev.Name())
	}
	assert.Equal(t, StateAuthenticated, a.State())

	msgs, err := f.db.ListMessages(context.Background(), room)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAddUser(t *testing.T) {
	f := newRoomFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a := f.client(t, alice)
	require.NoError(t, f.presence.SetOnline(context.Background(), "bob"))
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	drain(t, a)

	require.NoError(t, handle(t, a, AddUser{Username: "bob"}))

	role, ok := f.db.Membership(bob.ID, room)
	require.True(t, ok)
	assert.Equal(t, models.RoleMember, role)

	frames := drain(t, a)
	require.Len(t, frames, 2)
	assert.Equal(t, models.EventMessage, frames[0].Event)
	m := frames[0].message(t)
	assert.Equal(t, "bob joined.", m.Content)
	assert.Equal(t, models.KindEvent, m.Kind)
	assert.Nil(t, m.Sender)
	assert.Equal(t, models.EventAddUser, frames[1].Event)
	assert.Equal(t, "bob,alice,true", frames[1].text(t))

	t.Run("already a member", func(t *testing.T) {
		var soft *softFailure
		assert.ErrorAs(t, handle(t, a, AddUser{Username: "bob"}), &soft)
		assert.Empty(t, drain(t, a))
	})
}

func TestAddUser_UnknownIsSoftFailure(t *testing.T) {
	f := newRoomFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice)
	a := f.client(t, alice)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	drain(t, a)

	err := handle(t, a, AddUser{Username: "ghost"})
	var soft *softFailure
	require.ErrorAs(t, err, &soft)
	assert.Empty(t, drain(t, a))
	assert.Equal(t, StateInRoom, a.State())
}

func TestKick(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	require.NoError(t, f.db.AddMembership(ctx, bob.ID, room, models.RoleMember))
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	require.NoError(t, handle(t, a, Kick{Username: "bob"}))

	_, ok := f.db.Membership(bob.ID, room)
	assert.False(t, ok)

	for _, c := range []*Client{a, b} {
		frames := drain(t, c)
		require.Len(t, frames, 2)
		assert.Equal(t, models.EventKick, frames[0].Event)
		assert.Equal(t, "bob,alice", frames[0].text(t))
		assert.Equal(t, "bob was kicked out by alice.", frames[1].message(t).Content)
	}
}

func TestKick_GhostUserBroadcastsNothing(t *testing.T) {
	f := newRoomFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	err := handle(t, a, Kick{Username: "ghost-user"})
	var soft *softFailure
	require.ErrorAs(t, err, &soft)

	assert.Empty(t, drain(t, a))
	assert.Empty(t, drain(t, b))
	assert.Equal(t, StateInRoom, a.State())

	msgs, err := f.db.ListMessages(context.Background(), room)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestLeave(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	require.NoError(t, f.db.AddMembership(ctx, bob.ID, room, models.RoleMember))
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	require.NoError(t, handle(t, b, Leave{}))

	frames := drain(t, a)
	require.Len(t, frames, 2)
	assert.Equal(t, models.EventLeave, frames[0].Event)
	assert.Equal(t, "bob", frames[0].text(t))
	assert.Equal(t, "bob left.", frames[1].message(t).Content)

	_, ok := f.db.Membership(bob.ID, room)
	assert.False(t, ok)
	assert.Equal(t, StateAuthenticated, b.State())
	_, inRoom := b.room()
	assert.False(t, inRoom)

	assert.ErrorIs(t, handle(t, b, SendMessage{Text: "still here?"}), errNotInRoom)
}

func TestTyping(t *testing.T) {
	f := newRoomFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	require.NoError(t, handle(t, a, Typing{Started: true}))
	require.NoError(t, handle(t, a, Typing{Started: false}))

	for _, c := range []*Client{a, b} {
		frames := drain(t, c)
		require.Len(t, frames, 2)
		assert.Equal(t, models.EventTypingStart, frames[0].Event)
		assert.Equal(t, models.EventTypingStop, frames[1].Event)
		assert.Equal(t, "alice", frames[1].text(t))
	}

	msgs, err := f.db.ListMessages(context.Background(), room)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDisconnect_OfflineToOthersOnly(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	a.disconnect(ctx)

	assert.Equal(t, StateDisconnected, a.State())
	assert.False(t, f.presence.IsOnline(ctx, "alice"))
	assert.Empty(t, drain(t, a))
	_, ok := <-a.send
	assert.False(t, ok, "send queue is closed")

	frames := drain(t, b)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventOffline, frames[0].Event)
	assert.Equal(t, "alice", frames[0].text(t))

	hub, _ := f.manager.hub(room)
	assert.False(t, hub.has(a))

	// terminal
	assert.ErrorIs(t, handle(t, a, Join{RoomID: room}), errNotAuthenticated)
	a.disconnect(ctx)
	assert.Empty(t, drain(t, b))
}

func TestBroadcast_DropsFullClient(t *testing.T) {
	f := newRoomFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	a, b := f.client(t, alice), f.client(t, bob)
	require.NoError(t, handle(t, a, Join{RoomID: room}))
	require.NoError(t, handle(t, b, Join{RoomID: room}))
	drain(t, a)
	drain(t, b)

	hub, _ := f.manager.hub(room)
	for i := 0; i < sendBuffer; i++ {
		hub.Broadcast([]byte(`{}`), a)
	}
	assert.True(t, hub.has(b))

	hub.Broadcast([]byte(`{}`), a)
	assert.False(t, hub.has(b))
	assert.True(t, hub.has(a))

	// closed clients never receive again
	assert.False(t, b.enqueue([]byte(`{}`)))
}

func TestManager_Sweep(t *testing.T) {
	f := newRoomFixture(t)
	alice := f.user(t, "alice")
	room1, room2 := f.room(t, alice), uuid.New()
	a := f.client(t, alice)

	require.NoError(t, handle(t, a, Join{RoomID: room1}))
	require.NoError(t, handle(t, a, Join{RoomID: room2}))
	assert.Equal(t, 2, f.manager.hubCount())

	f.manager.sweep(time.Now())
	assert.Equal(t, 2, f.manager.hubCount(), "fresh hubs survive")

	f.manager.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, f.manager.hubCount())
	_, ok := f.manager.hub(room2)
	assert.True(t, ok, "occupied hub survives")
}

func TestManager_RunStopsWithContext(t *testing.T) {
	f := newRoomFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.manager.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
