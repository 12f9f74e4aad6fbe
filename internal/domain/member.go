package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownRole = errors.New("unknown role")

type Role int

const (
	RoleOwner Role = iota
	RolePlayer
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RolePlayer
}

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RolePlayer:
		return "player"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// MemberState is the per (channel, user) record kept in the membership store.
// Its presence is the only signal that the user is still in the channel.
type MemberState struct {
	Role     Role `json:"role"`
	Approved bool `json:"approved"`
}

func NewOwnerState() MemberState {
	return MemberState{Role: RoleOwner, Approved: true}
}

func NewPlayerState() MemberState {
	return MemberState{Role: RolePlayer}
}

// Approve returns the approved copy. There is no way back to unapproved.
func (s MemberState) Approve() MemberState {
	s.Approved = true
	return s
}

func (s MemberState) IsOwner() bool { return s.Role == RoleOwner }

// Member is a read-only view of a member entry for APIs.
type Member struct {
	UserID   UserID `json:"user_id"`
	Role     Role   `json:"role"`
	Approved bool   `json:"approved"`
}
