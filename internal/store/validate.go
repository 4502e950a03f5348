package store

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits. Oversized inputs are rejected before any store
// mutation so a failed write never leaves partial state.
const (
	MaxFactLength           = 500
	MaxNicknameLength       = 100
	MaxMessageContentLength = 2000

	// Largest Discord snowflake that fits the ID scheme.
	maxSnowflake = int64(9199999999999999999)
)

var (
	ErrFactEmpty     = errors.New("fact cannot be empty")
	ErrFactTooLong   = fmt.Errorf("fact too long (max %d characters)", MaxFactLength)
	ErrDuplicateFact = errors.New("identical active fact already exists")
	ErrFactNotFound  = errors.New("fact not found")
	ErrInvalidUserID = errors.New("user ID must be a positive snowflake")
)

// ValidateFact checks a fact string before insert or overwrite. Length
// limits count characters, not bytes.
func ValidateFact(fact string) error {
	if strings.TrimSpace(fact) == "" {
		return ErrFactEmpty
	}
	if utf8.RuneCountInString(fact) > MaxFactLength {
		return ErrFactTooLong
	}
	return nil
}

// ValidateUserID checks a platform user ID.
func ValidateUserID(userID int64) error {
	if userID <= 0 || userID > maxSnowflake {
		return ErrInvalidUserID
	}
	return nil
}

// truncateContent caps message content at the storage limit. Overlong
// messages are stored truncated rather than dropped. The cut lands on a
// rune boundary so stored content is always valid UTF-8.
func truncateContent(content string) string {
	if utf8.RuneCountInString(content) <= MaxMessageContentLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:MaxMessageContentLength])
}
