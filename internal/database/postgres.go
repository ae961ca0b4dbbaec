package database

import (
	"context"
	"database/sql"
	"fmt"

	"plainchat/internal/apperr"
	"plainchat/internal/database/migrations"
	"plainchat/internal/models"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(50)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db}
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, p.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// User Repository Implementation
func (p *PostgresDB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`

	user := &models.User{Username: username, PasswordHash: passwordHash}
	if err := p.db.QueryRowContext(ctx, query, username, passwordHash).Scan(&user.ID); err != nil {
		return nil, mapErr(err, "Username", username)
	}
	return user, nil
}

func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash FROM users WHERE username = $1`

	user := &models.User{}
	err := p.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		return nil, mapErr(err, "User", username)
	}
	return user, nil
}

func (p *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT id, username, password_hash FROM users WHERE id = $1`

	user := &models.User{}
	err := p.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		return nil, mapErr(err, "User", "")
	}
	return user, nil
}

func (p *PostgresDB) UpdateUser(ctx context.Context, id uuid.UUID, username, passwordHash *string) (string, error) {
	query := `
		UPDATE users
		SET username = COALESCE($1, username),
		    password_hash = COALESCE($2, password_hash)
		WHERE id = $3
		RETURNING username`

	var name string
	if err := p.db.QueryRowContext(ctx, query, username, passwordHash, id).Scan(&name); err != nil {
		data := ""
		if username != nil {
			data = *username
		}
		return "", mapErr(err, "Username", data)
	}
	return name, nil
}

func (p *PostgresDB) DeleteUser(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := withTx(ctx, p.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_groups WHERE user_id = $1`, id); err != nil {
			return apperr.DB(err)
		}
		err := tx.QueryRowContext(ctx, `DELETE FROM users WHERE id = $1 RETURNING username`, id).Scan(&name)
		return mapErr(err, "User", "")
	})
	return name, err
}

func (p *PostgresDB) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := p.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, apperr.DB(err)
	}
	return exists, nil
}

// Group Repository Implementation
func (p *PostgresDB) CreateGroup(ctx context.Context, name string, ownerID uuid.UUID) (*models.Group, error) {
	group := &models.Group{Name: name}
	err := withTx(ctx, p.db, func(tx DBTX) error {
		if err := tx.QueryRowContext(ctx, `INSERT INTO groups (name) VALUES ($1) RETURNING id`, name).Scan(&group.ID); err != nil {
			return mapErr(err, "Group", name)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_groups (user_id, group_id, role) VALUES ($1, $2, $3)`,
			ownerID, group.ID, string(models.RoleAdmin))
		return mapErr(err, "User", "")
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (p *PostgresDB) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]*models.Group, error) {
	query := `
		SELECT g.id, g.name
		FROM user_groups ug
		JOIN groups g ON g.id = ug.group_id
		WHERE ug.user_id = $1
		ORDER BY g.name`

	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	groups := []*models.Group{}
	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, apperr.DB(err)
		}
		groups = append(groups, g)
	}
	return groups, apperr.DB(rows.Err())
}

func (p *PostgresDB) DeleteGroup(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	group := &models.Group{}
	err := withTx(ctx, p.db, func(tx DBTX) error {
		err := tx.QueryRowContext(ctx, `SELECT id, name FROM groups WHERE id = $1`, groupID).Scan(&group.ID, &group.Name)
		if err != nil {
			return mapErr(err, "Group", "")
		}
		for _, q := range []string{
			`DELETE FROM user_groups WHERE group_id = $1`,
			`DELETE FROM messages WHERE receiver_group_id = $1`,
			`DELETE FROM groups WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, groupID); err != nil {
				return apperr.DB(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Membership Repository Implementation
func (p *PostgresDB) AddMembership(ctx context.Context, userID, groupID uuid.UUID, role models.Role) error {
	query := `INSERT INTO user_groups (user_id, group_id, role) VALUES ($1, $2, $3)`
	_, err := p.db.ExecContext(ctx, query, userID, groupID, string(role))
	return mapErr(err, "Membership", userID.String())
}

func (p *PostgresDB) RemoveMembership(ctx context.Context, userID, groupID uuid.UUID) error {
	query := `DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`
	_, err := p.db.ExecContext(ctx, query, userID, groupID)
	return apperr.DB(err)
}

func (p *PostgresDB) RemoveMembershipByUsername(ctx context.Context, username string, groupID uuid.UUID) error {
	query := `
		DELETE FROM user_groups
		USING users
		WHERE users.id = user_groups.user_id
		  AND users.username = $1
		  AND user_groups.group_id = $2`

	res, err := p.db.ExecContext(ctx, query, username, groupID)
	if err != nil {
		return apperr.DB(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.DB(err)
	}
	if n == 0 {
		return &apperr.DoesNotExist{Type: "Membership", Data: username}
	}
	return nil
}

func (p *PostgresDB) IsMember(ctx context.Context, userID, groupID uuid.UUID, role *models.Role) (bool, error) {
	var (
		exists bool
		err    error
	)
	if role != nil {
		query := `SELECT EXISTS (SELECT 1 FROM user_groups WHERE group_id = $1 AND user_id = $2 AND role = $3)`
		err = p.db.QueryRowContext(ctx, query, groupID, userID, string(*role)).Scan(&exists)
	} else {
		query := `SELECT EXISTS (SELECT 1 FROM user_groups WHERE group_id = $1 AND user_id = $2)`
		err = p.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists)
	}
	if err != nil {
		return false, apperr.DB(err)
	}
	return exists, nil
}

func (p *PostgresDB) ListMembers(ctx context.Context, groupID uuid.UUID) ([]*models.Member, error) {
	query := `
		SELECT u.username, ug.role
		FROM user_groups ug
		JOIN users u ON u.id = ug.user_id
		WHERE ug.group_id = $1
		ORDER BY u.username`

	rows, err := p.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	members := []*models.Member{}
	for rows.Next() {
		var (
			m    models.Member
			role string
		)
		if err := rows.Scan(&m.Username, &role); err != nil {
			return nil, apperr.DB(err)
		}
		m.Role = models.Role(role)
		members = append(members, &m)
	}
	return members, apperr.DB(rows.Err())
}

// Message Repository Implementation
func (p *PostgresDB) InsertMessage(ctx context.Context, nm models.NewMessage) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_group_id, content, msg_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	msg := &models.Message{
		RoomID:  nm.RoomID,
		Sender:  nm.SenderName,
		Content: nm.Content,
		Kind:    nm.Kind,
	}
	err := p.db.QueryRowContext(ctx, query, nm.SenderID, nm.RoomID, nm.Content, string(nm.Kind)).Scan(&msg.ID, &msg.Date)
	if err != nil {
		return nil, mapErr(err, "Group", nm.RoomID.String())
	}
	return msg, nil
}

func (p *PostgresDB) ListMessages(ctx context.Context, groupID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT m.id, u.username, m.content, m.msg_type, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.receiver_group_id = $1
		ORDER BY m.created_at, m.id`

	rows, err := p.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		var (
			msg    = &models.Message{RoomID: groupID}
			sender sql.NullString
			kind   string
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.Content, &kind, &msg.Date); err != nil {
			return nil, apperr.DB(err)
		}
		if sender.Valid {
			msg.Sender = &sender.String
		}
		msg.Kind = models.MessageKind(kind)
		messages = append(messages, msg)
	}
	return messages, apperr.DB(rows.Err())
}
