package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/eventure-server/internal/store"
)

//go:embed schema.sql
var schema string

const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates all tables and indexes if they do not exist yet.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// ==== UserStore implementation ====

// UpsertUser stores or refreshes a user's display name.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id, displayName string) error {
	query := `
		INSERT INTO users (id, display_name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, displayName, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT id, display_name, updated_at FROM users WHERE id = ?`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.DisplayName, &user.UpdatedAt)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// ==== ConversationStore implementation ====

// CreateConversation inserts a conversation and both participant links in one transaction.
func (s *SQLiteStore) CreateConversation(ctx context.Context, directKey string, userA, userB string) (*store.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (direct_key, created_at) VALUES (?, ?)`,
		directKey, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert conversation %s: %w", directKey, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	conversationID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`
	for _, userID := range []string{userA, userB} {
		if _, err := tx.ExecContext(ctx, memberQuery, conversationID, userID); err != nil {
			return nil, fmt.Errorf("add participant %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("commit conversation %s: %w", directKey, store.ErrConflict)
		}
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetConversation(ctx, conversationID)
}

// GetConversation retrieves a conversation with its participants.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	query := `SELECT id, direct_key, created_at FROM conversations WHERE id = ?`
	return s.getConversation(ctx, query, id)
}

// GetConversationByDirectKey retrieves the conversation for a canonical pair key.
func (s *SQLiteStore) GetConversationByDirectKey(ctx context.Context, directKey string) (*store.Conversation, error) {
	query := `SELECT id, direct_key, created_at FROM conversations WHERE direct_key = ?`
	return s.getConversation(ctx, query, directKey)
}

func (s *SQLiteStore) getConversation(ctx context.Context, query string, arg any) (*store.Conversation, error) {
	var conv store.Conversation
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&conv.ID, &conv.DirectKey, &conv.CreatedAt)
	if err != nil {
		return nil, notFound("conversation", err)
	}

	participants, err := s.listParticipants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants
	return &conv, nil
}

func (s *SQLiteStore) listParticipants(ctx context.Context, conversationID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`,
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
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.direct_key, c.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(
			(SELECT MAX(m.sent_at) FROM messages m WHERE m.conversation_id = c.id),
			c.created_at
		) DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var conversations []*store.Conversation
	for rows.Next() {
		var conv store.Conversation
		if err := rows.Scan(&conv.ID, &conv.DirectKey, &conv.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single connection before loading participants.
	rows.Close()

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
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, sent_at, is_read)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ConversationID, msg.SenderID, msg.Content, msg.SentAt.UTC(), msg.IsRead)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages returns all messages of a conversation in send order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, sent_at, is_read
		FROM messages
		WHERE conversation_id = ?
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
func (s *SQLiteStore) LastMessageTime(ctx context.Context, conversationID int64) (*time.Time, error) {
	query := `
		SELECT sent_at FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT 1
	`
	var sentAt time.Time
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&sentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query last message: %w", err)
	}
	return &sentAt, nil
}

// MarkMessagesRead flips unread messages in a conversation not authored by readerID.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, conversationID int64, readerID string) (int64, error) {
	query := `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return result.RowsAffected()
}

// CountUnreadMessages counts unread messages addressed to userID.
func (s *SQLiteStore) CountUnreadMessages(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p ON p.conversation_id = m.conversation_id AND p.user_id = ?
		WHERE m.sender_id <> ? AND m.is_read = 0
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// CountUnreadInConversation counts unread messages addressed to userID in one conversation.
func (s *SQLiteStore) CountUnreadInConversation(ctx context.Context, conversationID int64, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread in conversation: %w", err)
	}
	return count, nil
}

// ==== NotificationStore implementation ====

// SaveNotification persists a notification to storage.
func (s *SQLiteStore) SaveNotification(ctx context.Context, n *store.Notification) error {
	query := `
		INSERT INTO notifications (user_id, message, created_at, is_read, event_id)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, n.UserID, n.Message, n.CreatedAt.UTC(), n.IsRead, nullInt64(n.EventID))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// ListNotifications lists a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*store.Notification, error) {
	query := `
		SELECT id, user_id, message, created_at, is_read, event_id
		FROM notifications
		WHERE user_id = ? AND (? = 0 OR is_read = 0)
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, unreadOnly)
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
func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flips the read flag of one notification.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64, ownerID string) error {
	query := `
		UPDATE notifications SET is_read = 1
		WHERE id = ? AND is_read = 0 AND (? = '' OR user_id = ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, ownerID, ownerID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead flips every unread notification of a user.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

// ==== CommentStore implementation ====

// SaveComment persists a comment to storage.
func (s *SQLiteStore) SaveComment(ctx context.Context, c *store.Comment) error {
	query := `
		INSERT INTO comments (event_id, user_id, content, created_at, parent_comment_id)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, c.EventID, c.UserID, c.Content, c.CreatedAt.UTC(), nullInt64(c.ParentCommentID))
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	c.ID = id
	return nil
}

// GetComment retrieves a comment by ID.
func (s *SQLiteStore) GetComment(ctx context.Context, id int64) (*store.Comment, error) {
	query := `
		SELECT id, event_id, user_id, content, created_at, parent_comment_id
		FROM comments WHERE id = ?
	`
	var c store.Comment
	var parentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.EventID, &c.UserID, &c.Content, &c.CreatedAt, &parentID)
	if err != nil {
		return nil, notFound("comment", err)
	}
	if parentID.Valid {
		c.ParentCommentID = &parentID.Int64
	}
	return &c, nil
}

// ListComments returns an event's comments in creation order.
func (s *SQLiteStore) ListComments(ctx context.Context, eventID int64) ([]*store.Comment, error) {
	query := `
		SELECT id, event_id, user_id, content, created_at, parent_comment_id
		FROM comments
		WHERE event_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, eventID)
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
func (s *SQLiteStore) CreateEvent(ctx context.Context, ev *store.Event) error {
	query := `
		INSERT INTO events (title, description, start_time, end_time, location, max_participants, organizer_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, query,
		ev.Title, ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(), ev.Location,
		maxParticipants(ev.MaxParticipants), ev.OrganizerID, ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	ev.ID = id
	return nil
}

// GetEvent retrieves an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id int64) (*store.Event, error) {
	query := `
		SELECT id, title, description, start_time, end_time, location, max_participants, organizer_id, created_at
		FROM events WHERE id = ?
	`
	var ev store.Event
	var maxP sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&ev.Location, &maxP, &ev.OrganizerID, &ev.CreatedAt,
	)
	if err != nil {
		return nil, notFound("event", err)
	}
	if maxP.Valid {
		v := int(maxP.Int64)
		ev.MaxParticipants = &v
	}
	return &ev, nil
}

// UpdateEvent overwrites the editable fields of an event.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, ev *store.Event) error {
	query := `
		UPDATE events
		SET title = ?, description = ?, start_time = ?, end_time = ?, location = ?, max_participants = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		ev.Title, ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(), ev.Location,
		maxParticipants(ev.MaxParticipants), ev.ID,
	)
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
func (s *SQLiteStore) AddEventParticipant(ctx context.Context, eventID int64, userID string) error {
	query := `INSERT INTO event_participants (event_id, user_id, joined_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, eventID, userID, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("add event participant: %w", store.ErrConflict)
		}
		return fmt.Errorf("add event participant: %w", err)
	}
	return nil
}

// RemoveEventParticipant unlinks a user from an event.
func (s *SQLiteStore) RemoveEventParticipant(ctx context.Context, eventID int64, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM event_participants WHERE event_id = ? AND user_id = ?`, eventID, userID,
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
func (s *SQLiteStore) ListEventParticipants(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM event_participants WHERE event_id = ? ORDER BY joined_at ASC, user_id ASC`,
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

func maxParticipants(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

var _ store.Store = (*SQLiteStore)(nil)
