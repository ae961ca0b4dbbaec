package database

import (
	"context"
	"fmt"

	"plainchat/internal/models"
	"plainchat/pkg/logger"
)

// HashFunc turns a plain password into its stored hash.
type HashFunc func(password string) (string, error)

type seedUser struct {
	name, password string
}

type seedGroup struct {
	name    string
	owner   int
	members []int
}

type seedMessage struct {
	sender  int // -1 for event messages
	group   int
	content string
}

var (
	seedUsers = []seedUser{
		{"horam", "123456"},
		{"whatever", "qwerty"},
		{"andhere", "pazpaz33"},
		{"ten0g", "66pazpaz"},
	}
	seedGroups = []seedGroup{
		{name: "andersons farm", owner: 0, members: []int{1, 2}},
		{name: "the valhalla", owner: 1, members: []int{0, 3}},
		{name: "x84-64", owner: 3, members: []int{0}},
	}
	seedMessages = []seedMessage{
		{0, 0, "psql16 really likes single quotes tho"},
		{-1, 0, "someone joined."},
		{1, 0, "you could shoot yourself in the foot"},
		{2, 1, "if you do not adhere to its"},
		{0, 0, "conventions and semantics."},
		{0, 1, "i am out of words"},
		{3, 0, "or maybe not"},
		{1, 0, "the well-lit room is awaiting me"},
	}
)

// Seed fills an empty database with demo users, groups, memberships and
// messages.
func Seed(ctx context.Context, db Database, hash HashFunc) error {
	users := make([]*models.User, 0, len(seedUsers))
	for _, su := range seedUsers {
		h, err := hash(su.password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", su.name, err)
		}
		u, err := db.CreateUser(ctx, su.name, h)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", su.name, err)
		}
		users = append(users, u)
	}

	groups := make([]*models.Group, 0, len(seedGroups))
	for _, sg := range seedGroups {
		g, err := db.CreateGroup(ctx, sg.name, users[sg.owner].ID)
		if err != nil {
			return fmt.Errorf("seed group %s: %w", sg.name, err)
		}
		for _, m := range sg.members {
			if err := db.AddMembership(ctx, users[m].ID, g.ID, models.RoleMember); err != nil {
				return fmt.Errorf("seed membership %s/%s: %w", users[m].Username, sg.name, err)
			}
		}
		groups = append(groups, g)
	}

	for _, sm := range seedMessages {
		nm := models.NewMessage{
			RoomID:  groups[sm.group].ID,
			Content: sm.content,
			Kind:    models.KindEvent,
		}
		if sm.sender >= 0 {
			u := users[sm.sender]
			id := u.ID
			nm.SenderID, nm.SenderName, nm.Kind = &id, &u.Username, models.KindNormal
		}
		if _, err := db.InsertMessage(ctx, nm); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}

	logger.Info("Seeded %d users, %d groups, %d messages", len(users), len(groups), len(seedMessages))
	return nil
}
