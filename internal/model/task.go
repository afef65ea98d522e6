package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field length limits for task fields. Enforced at the tool adapter and
// HTTP layers before any row is written; the schema carries matching
// constraints as a backstop.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
)

// Task is a single todo item owned by exactly one user.
// Tasks are deleted permanently; there is no soft-delete column.
type Task struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidateTitle checks the 1–200 character title constraint.
// Whitespace-only titles count as empty.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if len([]rune(title)) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
	}
	return nil
}

// ValidateDescription checks the optional description against its length limit.
func ValidateDescription(description *string) error {
	if description == nil {
		return nil
	}
	if len([]rune(*description)) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds maximum length of %d characters", MaxDescriptionLen)
	}
	return nil
}

// TaskUpdate carries a partial update for a task. Nil fields are left
// unchanged. At least one field must be set; callers validate this
// before reaching storage.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil
}

// User is a registered account. Tasks and conversations hang off of it.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ValidateEmail performs a minimal shape check. Full RFC validation is
// deliberately out of scope; the unique index on users.email is the
// real guard against duplicates.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("email is not valid")
	}
	if len(email) > 320 {
		return fmt.Errorf("email exceeds maximum length of 320 characters")
	}
	return nil
}
