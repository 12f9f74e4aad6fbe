// Package domain holds the lobby value types: ids and their validation,
// member roles with the approval transition, and the wire envelope.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen    = 64
	MaxChannelIDLen = 64
)

var (
	ErrIDEmpty   = errors.New("id empty")
	ErrIDTooLong = errors.New("id too long")
	ErrIDInvalid = errors.New("id contains '/'")
)

type (
	UserID    string
	ChannelID string
)

// ValidateUserID is a tiny guard used by adapters before touching the store.
func ValidateUserID(id UserID) error {
	return validateID(string(id), MaxUserIDLen)
}

// ValidateChannelID also rejects '/', which separates key segments in the store.
func ValidateChannelID(id ChannelID) error {
	if err := validateID(string(id), MaxChannelIDLen); err != nil {
		return err
	}
	if strings.Contains(string(id), "/") {
		return ErrIDInvalid
	}
	return nil
}

func validateID(id string, max int) error {
	if len(id) == 0 {
		return ErrIDEmpty
	}
	if len(id) > max {
		return ErrIDTooLong
	}
	return nil
}
