package models

import "time"

type Service struct {
	ID          int64           `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Category    ServiceCategory `json:"category" yaml:"category"`
	Icon        string          `json:"icon" yaml:"icon"`
	IsActive    bool            `json:"is_active" yaml:"is_active"`
	CreatedBy   *int64          `json:"created_by,omitempty" yaml:"-"`
	CreatedAt   time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"-"`
}

func (s *Service) Snapshot() map[string]any {
	return map[string]any{
		"name":        s.Name,
		"description": s.Description,
		"category":    s.Category,
		"icon":        s.Icon,
		"is_active":   s.IsActive,
	}
}

type ReadReceipt struct {
	UserID int64     `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID          int64         `json:"id"`
	BookingID   int64         `json:"booking_id"`
	SenderID    *int64        `json:"sender_id"`
	Content     string        `json:"content"`
	MessageType MessageType   `json:"message_type"`
	ImageURL    string        `json:"image_url,omitempty"`
	ReadBy      []ReadReceipt `json:"read_by"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IsSystem reports whether the message was synthesized by the platform.
func (m *Message) IsSystem() bool {
	return m.SenderID == nil
}

func (m *Message) ReadByUser(userID int64) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Provenance identifies the request that triggered an admin action.
type Provenance struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// AdminAction is a write-once audit record.
type AdminAction struct {
	ID            int64          `json:"id"`
	AdminID       int64          `json:"admin_id"`
	ActionType    ActionType     `json:"action_type"`
	TargetType    TargetType     `json:"target_type"`
	TargetID      int64          `json:"target_id"`
	PreviousState map[string]any `json:"previous_state,omitempty"`
	NewState      map[string]any `json:"new_state,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Provenance    Provenance     `json:"provenance"`
	CreatedAt     time.Time      `json:"created_at"`
}

type AuditFilter struct {
	AdminID    *int64
	ActionType ActionType
	TargetType TargetType
	TargetID   *int64
	From       *time.Time
	To         *time.Time
}

// Page is a normalized pagination request.
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps page and limit into the accepted ranges.
func NewPage(page, limit, defaultLimit int) Page {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Page{Page: page, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func (p Page) Result(total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
