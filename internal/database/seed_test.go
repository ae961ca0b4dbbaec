package database_test

import (
	"context"
	"errors"
	"testing"

	"plainchat/internal/database"
	"plainchat/internal/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainHash(p string) (string, error) { return "hash:" + p, nil }

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New()

	require.NoError(t, database.Seed(ctx, db, plainHash))

	horam, err := db.GetUserByUsername(ctx, "horam")
	require.NoError(t, err)
	assert.Equal(t, "hash:123456", horam.PasswordHash)

	groups, err := db.ListUserGroups(ctx, horam.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 3)

	var farm = groups[0]
	assert.Equal(t, "andersons farm", farm.Name)

	members, err := db.ListMembers(ctx, farm.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	msgs, err := db.ListMessages(ctx, farm.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	assert.Nil(t, msgs[1].Sender)
	assert.Equal(t, "someone joined.", msgs[1].Content)
}

func TestSeed_HashFailure(t *testing.T) {
	boom := errors.New("boom")
	err := database.Seed(context.Background(), dbtest.New(), func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestSeed_Twice(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New()
	require.NoError(t, database.Seed(ctx, db, plainHash))
	assert.Error(t, database.Seed(ctx, db, plainHash))
}
