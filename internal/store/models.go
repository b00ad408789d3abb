package store

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type SolutionType string

const (
	SolutionText  SolutionType = "text"
	SolutionImage SolutionType = "image"
	SolutionLink  SolutionType = "link"
)

// Valid reports whether t is one of the known solution types.
func (t SolutionType) Valid() bool {
	switch t {
	case SolutionText, SolutionImage, SolutionLink:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-" gorm:"not null"` // bcrypt hash, or plaintext in legacy rows
	Role         Role      `json:"role" gorm:"not null;default:member"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Category struct {
	ID          int64  `json:"id" yaml:"id" gorm:"primaryKey"`
	Name        string `json:"name" yaml:"name" gorm:"not null"`
	Description string `json:"description" yaml:"description"`
}

// Question is referenced by Solution.QuestionID. CategoryID is a soft
// reference; deleting a category leaves its questions in place.
type Question struct {
	ID          int64    `json:"id" yaml:"id" gorm:"primaryKey"`
	CategoryID  int64    `json:"categoryId" yaml:"category_id" gorm:"index"`
	Keywords    []string `json:"keywords" yaml:"keywords" gorm:"serializer:json"`
	Title       string   `json:"title" yaml:"title" gorm:"not null"`
	Description string   `json:"description" yaml:"description"`
}

// Solution is one troubleshooting step. Steps of a question are expected to
// run 1..n without gaps; nothing enforces it, a gap simply ends the walk.
type Solution struct {
	ID           int64        `json:"id" yaml:"id" gorm:"primaryKey"`
	QuestionID   int64        `json:"questionId" yaml:"question_id" gorm:"index;not null"`
	Step         int          `json:"step" yaml:"step" gorm:"not null"`
	Text         string       `json:"text" yaml:"text" gorm:"not null"`
	Type         SolutionType `json:"type" yaml:"type" gorm:"not null;default:text"`
	HelpfulLinks []string     `json:"helpfulLinks" yaml:"helpful_links" gorm:"serializer:json"`
}

type ConversationMessage struct {
	Type      string    `json:"type"` // "user" or "bot"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an archived chat log, written only when a session is
// explicitly saved.
type Conversation struct {
	ID        int64                 `json:"id" gorm:"primaryKey"`
	SessionID string                `json:"session_id" gorm:"index"`
	Timestamp time.Time             `json:"timestamp"`
	Messages  []ConversationMessage `json:"messages" gorm:"serializer:json"`
}
