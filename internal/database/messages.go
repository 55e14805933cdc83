package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"helpr/internal/models"
)

func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	now := msg.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO messages (booking_id, sender_id, content, message_type, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.BookingID, nullInt64(msg.SenderID), msg.Content, string(msg.MessageType), msg.ImageURL, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
	return nil
}

// GetMessages returns a page of the booking's chat, oldest first.
func (db *DB) GetMessages(ctx context.Context, bookingID int64, page models.Page) ([]*models.Message, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE booking_id = ?`, bookingID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, booking_id, sender_id, content, message_type, image_url, created_at
		 FROM messages WHERE booking_id = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
		bookingID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get messages: %w", err)
	}

	var (
		messages []*models.Message
		byID     = make(map[int64]*models.Message)
	)
	for rows.Next() {
		var (
			m        models.Message
			senderID sql.NullInt64
			msgType  string
		)
		if err := rows.Scan(&m.ID, &m.BookingID, &senderID, &m.Content, &msgType, &m.ImageURL, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SenderID = int64Ptr(senderID)
		m.MessageType = models.MessageType(msgType)
		m.ReadBy = []models.ReadReceipt{}
		messages = append(messages, &m)
		byID[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("failed to iterate messages: %w", err)
	}
	rows.Close()

	if len(messages) == 0 {
		return messages, total, nil
	}

	ids := make([]any, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	readRows, err := db.QueryContext(ctx,
		`SELECT message_id, user_id, read_at FROM message_reads WHERE message_id IN (`+placeholders(len(ids))+`) ORDER BY read_at ASC`,
		ids...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get read receipts: %w", err)
	}
	defer readRows.Close()
	for readRows.Next() {
		var (
			msgID   int64
			receipt models.ReadReceipt
		)
		if err := readRows.Scan(&msgID, &receipt.UserID, &receipt.ReadAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan read receipt: %w", err)
		}
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, receipt)
		}
	}
	return messages, total, readRows.Err()
}

// MarkMessagesRead records receipts for messages in the booking not sent by
// userID. An empty messageIDs marks every such message. Only ids that were not
// already read by the user are returned.
func (db *DB) MarkMessagesRead(ctx context.Context, bookingID, userID int64, messageIDs []int64, at time.Time) ([]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT m.id FROM messages m
	          WHERE m.booking_id = ? AND (m.sender_id IS NULL OR m.sender_id != ?)
	          AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)`
	args := []any{bookingID, userID, userID}
	if len(messageIDs) > 0 {
		query += ` AND m.id IN (` + placeholders(len(messageIDs)) + `)`
		for _, id := range messageIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY m.id ASC`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find unread messages: %w", err)
	}
	var pending []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message id: %w", err)
		}
		pending = append(pending, id)
	}
	rows.Close()

	marked := make([]int64, 0, len(pending))
	for _, id := range pending {
		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
			id, userID, at.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to mark message read: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			marked = append(marked, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit read receipts: %w", err)
	}
	return marked, nil
}

func (db *DB) CountUnread(ctx context.Context, bookingID, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.booking_id = ? AND (m.sender_id IS NULL OR m.sender_id != ?)
		 AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)`,
		bookingID, userID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
