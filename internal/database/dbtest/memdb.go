// Package dbtest provides an in-memory database.Database for tests of the
// layers above the durable store.
package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"plainchat/internal/apperr"
	"plainchat/internal/database"
	"plainchat/internal/models"

	"github.com/google/uuid"
)

var _ database.Database = (*DB)(nil)

type DB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	groups   map[uuid.UUID]*models.Group
	members  map[[2]uuid.UUID]models.Role // {user, group}
	messages []*models.Message
	senders  map[uuid.UUID]uuid.UUID // message id -> sender id
	last     time.Time
}

func New() *DB {
	return &DB{
		users:   make(map[uuid.UUID]*models.User),
		groups:  make(map[uuid.UUID]*models.Group),
		members: make(map[[2]uuid.UUID]models.Role),
		senders: make(map[uuid.UUID]uuid.UUID),
	}
}

func (d *DB) Close() error { return nil }

func (d *DB) CreateUser(_ context.Context, username, passwordHash string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.byName(username) != nil {
		return nil, &apperr.AlreadyExists{Type: "Username", Data: username}
	}
	u := &models.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash}
	d.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (d *DB) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.byName(username)
	if u == nil {
		return nil, &apperr.DoesNotExist{Type: "User", Data: username}
	}
	cp := *u
	return &cp, nil
}

func (d *DB) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, &apperr.DoesNotExist{Type: "User"}
	}
	cp := *u
	return &cp, nil
}

func (d *DB) UpdateUser(_ context.Context, id uuid.UUID, username, passwordHash *string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return "", &apperr.DoesNotExist{Type: "User"}
	}
	if username != nil {
		if other := d.byName(*username); other != nil && other.ID != id {
			return "", &apperr.AlreadyExists{Type: "Username", Data: *username}
		}
		u.Username = *username
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	return u.Username, nil
}

func (d *DB) DeleteUser(_ context.Context, id uuid.UUID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return "", &apperr.DoesNotExist{Type: "User"}
	}
	for k := range d.members {
		if k[0] == id {
			delete(d.members, k)
		}
	}
	delete(d.users, id)
	return u.Username, nil
}

func (d *DB) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[id]
	return ok, nil
}

func (d *DB) CreateGroup(_ context.Context, name string, ownerID uuid.UUID) (*models.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[ownerID]; !ok {
		return nil, &apperr.DoesNotExist{Type: "User"}
	}
	g := &models.Group{ID: uuid.New(), Name: name}
	d.groups[g.ID] = g
	d.members[[2]uuid.UUID{ownerID, g.ID}] = models.RoleAdmin
	cp := *g
	return &cp, nil
}

func (d *DB) ListUserGroups(_ context.Context, userID uuid.UUID) ([]*models.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	groups := []*models.Group{}
	for k := range d.members {
		if k[0] == userID {
			cp := *d.groups[k[1]]
			groups = append(groups, &cp)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (d *DB) DeleteGroup(_ context.Context, groupID uuid.UUID) (*models.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[groupID]
	if !ok {
		return nil, &apperr.DoesNotExist{Type: "Group"}
	}
	for k := range d.members {
		if k[1] == groupID {
			delete(d.members, k)
		}
	}
	kept := d.messages[:0]
	for _, m := range d.messages {
		if m.RoomID != groupID {
			kept = append(kept, m)
		}
	}
	d.messages = kept
	delete(d.groups, groupID)
	return g, nil
}

func (d *DB) AddMembership(_ context.Context, userID, groupID uuid.UUID, role models.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return &apperr.DoesNotExist{Type: "Membership", Data: userID.String()}
	}
	if _, ok := d.groups[groupID]; !ok {
		return &apperr.DoesNotExist{Type: "Membership", Data: userID.String()}
	}
	key := [2]uuid.UUID{userID, groupID}
	if _, ok := d.members[key]; ok {
		return &apperr.AlreadyExists{Type: "Membership", Data: userID.String()}
	}
	d.members[key] = role
	return nil
}

func (d *DB) RemoveMembership(_ context.Context, userID, groupID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, [2]uuid.UUID{userID, groupID})
	return nil
}

func (d *DB) RemoveMembershipByUsername(_ context.Context, username string, groupID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.byName(username)
	if u == nil {
		return &apperr.DoesNotExist{Type: "Membership", Data: username}
	}
	key := [2]uuid.UUID{u.ID, groupID}
	if _, ok := d.members[key]; !ok {
		return &apperr.DoesNotExist{Type: "Membership", Data: username}
	}
	delete(d.members, key)
	return nil
}

func (d *DB) IsMember(_ context.Context, userID, groupID uuid.UUID, role *models.Role) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.members[[2]uuid.UUID{userID, groupID}]
	if !ok {
		return false, nil
	}
	return role == nil || *role == r, nil
}

func (d *DB) ListMembers(_ context.Context, groupID uuid.UUID) ([]*models.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members := []*models.Member{}
	for k, r := range d.members {
		if k[1] == groupID {
			members = append(members, &models.Member{Username: d.users[k[0]].Username, Role: r})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

func (d *DB) InsertMessage(_ context.Context, nm models.NewMessage) (*models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.groups[nm.RoomID]; !ok {
		return nil, &apperr.DoesNotExist{Type: "Group", Data: nm.RoomID.String()}
	}

	// strictly increasing timestamps keep ordering assertions stable
	now := time.Now().UTC()
	if !now.After(d.last) {
		now = d.last.Add(time.Microsecond)
	}
	d.last = now

	m := &models.Message{
		ID:      uuid.New(),
		RoomID:  nm.RoomID,
		Content: nm.Content,
		Kind:    nm.Kind,
		Date:    now,
	}
	if nm.SenderID != nil {
		d.senders[m.ID] = *nm.SenderID
	}
	d.messages = append(d.messages, m)
	return d.resolve(m), nil
}

func (d *DB) ListMessages(_ context.Context, groupID uuid.UUID) ([]*models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := []*models.Message{}
	for _, m := range d.messages {
		if m.RoomID == groupID {
			msgs = append(msgs, d.resolve(m))
		}
	}
	return msgs, nil
}

// Membership reports the stored role, for assertions.
func (d *DB) Membership(userID, groupID uuid.UUID) (models.Role, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.members[[2]uuid.UUID{userID, groupID}]
	return r, ok
}

// resolve copies m and fills in the sender's current username.
func (d *DB) resolve(m *models.Message) *models.Message {
	cp := *m
	if sid, ok := d.senders[m.ID]; ok {
		if u, ok := d.users[sid]; ok {
			name := u.Username
			cp.Sender = &name
		}
	}
	return &cp
}

func (d *DB) byName(username string) *models.User {
	for _, u := range d.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}
