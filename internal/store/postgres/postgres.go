package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vovakirdan/eventure-server/internal/store"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore implements store.Store for PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// New opens a pooled connection, verifies it and applies the schema.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

// UpsertUser stores or refreshes a user's display name.
func (s *PostgresStore) UpsertUser(ctx context.Context, id, displayName string) error {
	query := `
		INSERT INTO users (id, display_name, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, displayName, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, updated_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.DisplayName, &user.UpdatedAt)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// ==== ConversationStore implementation ====

// CreateConversation inserts a conversation and both participant links in one transaction.
func (s *PostgresStore) CreateConversation(ctx context.Context, directKey string, userA, userB string) (*store.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var conversationID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO conversations (direct_key, created_at) VALUES ($1, $2) RETURNING id`,
		directKey, time.Now().UTC(),
	).Scan(&conversationID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert conversation %s: %w", directKey, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	memberQuery := `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`
	for _, userID := range []string{userA, userB} {
		if _, err := tx.ExecContext(ctx, memberQuery, conversationID, userID); err != nil {
			return nil, fmt.Errorf("add participant %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetConversation(ctx, conversationID)
}

// GetConversation retrieves a conversation with its participants.
func (s *PostgresStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	return s.getConversation(ctx, `SELECT id, direct_key, created_at FROM conversations WHERE id = $1`, id)
}

// GetConversationByDirectKey retrieves the conversation for a canonical pair key.
func (s *PostgresStore) GetConversationByDirectKey(ctx context.Context, directKey string) (*store.Conversation, error) {
	return s.getConversation(ctx, `SELECT id, direct_key, created_at FROM conversations WHERE direct_key = $1`, directKey)
}

func (s *PostgresStore) getConversation(ctx context.Context, query string, arg any) (*store.Conversation, error) {
	var conv store.Conversation
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&conv.ID, &conv.DirectKey, &conv.CreatedAt); err != nil {
		return nil, notFound("conversation", err)
	}

	participants, err := s.listParticipants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants
	return &conv, nil
}

func (s *PostgresStore) listParticipants(ctx context.Context, conversationID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY user_id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

// ListConversations lists the user's conversations ordered by latest activity descending.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.direct_key, c.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY COALESCE(
			(SELECT MAX(m.sent_at) FROM messages m WHERE m.conversation_id = c.id),
			c.created_at
		) DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	for rows.Next() {
		var conv store.Conversation
		if err := rows.Scan(&conv.ID, &conv.DirectKey, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		participants, err := s.listParticipants(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		conv.Participants = participants
	}
	return conversations, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, sent_at, is_read)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, msg.ConversationID, msg.SenderID, msg.Content, msg.SentAt.UTC(), msg.IsRead).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns all messages of a conversation in send order.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, sent_at, is_read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.SentAt, &msg.IsRead); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// LastMessageTime returns the send time of the newest message, or nil when there is none.
func (s *PostgresStore) LastMessageTime(ctx context.Context, conversationID int64) (*time.Time, error) {
	var sentAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sent_at) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&sentAt)
	if err != nil {
		return nil, fmt.Errorf("query last message: %w", err)
	}
	if !sentAt.Valid {
		return nil, nil
	}
	return &sentAt.Time, nil
}

// MarkMessagesRead flips unread messages in a conversation not authored by readerID.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, conversationID int64, readerID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return result.RowsAffected()
}

// CountUnreadMessages counts unread messages addressed to userID.
func (s *PostgresStore) CountUnreadMessages(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p ON p.conversation_id = m.conversation_id AND p.user_id = $1
		WHERE m.sender_id <> $1 AND NOT m.is_read
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// CountUnreadInConversation counts unread messages addressed to userID in one conversation.
func (s *PostgresStore) CountUnreadInConversation(ctx context.Context, conversationID int64, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read
	`, conversationID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread in conversation: %w", err)
	}
	return count, nil
}

// ==== NotificationStore implementation ====

// SaveNotification persists a notification to storage.
func (s *PostgresStore) SaveNotification(ctx context.Context, n *store.Notification) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, message, created_at, is_read, event_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, n.UserID, n.Message, n.CreatedAt.UTC(), n.IsRead, n.EventID).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications lists a user's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, created_at, is_read, event_id
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id DESC
	`, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*store.Notification
	for rows.Next() {
		var n store.Notification
		var eventID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.CreatedAt, &n.IsRead, &eventID); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if eventID.Valid {
			n.EventID = &eventID.Int64
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications counts a user's unread notifications.
func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flips the read flag of one notification.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id int64, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND NOT is_read AND ($2 = '' OR user_id = $2)
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead flips every unread notification of a user.
func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

// ==== CommentStore implementation ====

// SaveComment persists a comment to storage.
func (s *PostgresStore) SaveComment(ctx context.Context, c *store.Comment) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (event_id, user_id, content, created_at, parent_comment_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, c.EventID, c.UserID, c.Content, c.CreatedAt.UTC(), c.ParentCommentID).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetComment retrieves a comment by ID.
func (s *PostgresStore) GetComment(ctx context.Context, id int64) (*store.Comment, error) {
	var c store.Comment
	var parentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, user_id, content, created_at, parent_comment_id
		FROM comments WHERE id = $1
	`, id).Scan(&c.ID, &c.EventID, &c.UserID, &c.Content, &c.CreatedAt, &parentID)
	if err != nil {
		return nil, notFound("comment", err)
	}
	if parentID.Valid {
		c.ParentCommentID = &parentID.Int64
	}
	return &c, nil
}

// ListComments returns an event's comments in creation order.
func (s *PostgresStore) ListComments(ctx context.Context, eventID int64) ([]*store.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, user_id, content, created_at, parent_comment_id
		FROM comments
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []*store.Comment
	for rows.Next() {
		var c store.Comment
		var parentID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.EventID, &c.UserID, &c.Content, &c.CreatedAt, &parentID); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if parentID.Valid {
			c.ParentCommentID = &parentID.Int64
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// ==== EventStore implementation ====

// CreateEvent persists an event to storage.
func (s *PostgresStore) CreateEvent(ctx context.Context, ev *store.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (title, description, start_time, end_time, location, max_participants, organizer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, ev.Title, ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(), ev.Location,
		ev.MaxParticipants, ev.OrganizerID, ev.CreatedAt.UTC(),
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*store.Event, error) {
	var ev store.Event
	var maxP sql.NullInt32
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, start_time, end_time, location, max_participants, organizer_id, created_at
		FROM events WHERE id = $1
	`, id).Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&ev.Location, &maxP, &ev.OrganizerID, &ev.CreatedAt,
	)
	if err != nil {
		return nil, notFound("event", err)
	}
	if maxP.Valid {
		v := int(maxP.Int32)
		ev.MaxParticipants = &v
	}
	return &ev, nil
}

// UpdateEvent overwrites the editable fields of an event.
func (s *PostgresStore) UpdateEvent(ctx context.Context, ev *store.Event) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET title = $1, description = $2, start_time = $3, end_time = $4, location = $5, max_participants = $6
		WHERE id = $7
	`, ev.Title, ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(), ev.Location, ev.MaxParticipants, ev.ID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("event %d: %w", ev.ID, store.ErrNotFound)
	}
	return nil
}

// AddEventParticipant links a user to an event.
func (s *PostgresStore) AddEventParticipant(ctx context.Context, eventID int64, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_participants (event_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		eventID, userID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("add event participant: %w", store.ErrConflict)
		}
		return fmt.Errorf("add event participant: %w", err)
	}
	return nil
}

// RemoveEventParticipant unlinks a user from an event.
func (s *PostgresStore) RemoveEventParticipant(ctx context.Context, eventID int64, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM event_participants WHERE event_id = $1 AND user_id = $2`, eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete event participant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("event participant: %w", store.ErrNotFound)
	}
	return nil
}

// ListEventParticipants lists participant user IDs in join order.
func (s *PostgresStore) ListEventParticipants(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM event_participants WHERE event_id = $1 ORDER BY joined_at ASC, user_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query event participants: %w", err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan event participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

var _ store.Store = (*PostgresStore)(nil)
