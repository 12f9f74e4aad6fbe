//go:generate go run go.uber.org/mock/mockgen -source=store_iface.go -destination=mocks/mock_store.go -package=mocks
package core

import "github.com/dkeye/Lobby/internal/domain"

// MembershipStore keeps one member entry per (channel, user).
// Per-key operations are atomic; nothing is transactional across keys.
type MembershipStore interface {
	// Exists reports whether any member entry exists for the channel.
	Exists(channel domain.ChannelID) (bool, error)
	// InsertIfAbsent writes the entry only when the key is free and reports whether it did.
	InsertIfAbsent(channel domain.ChannelID, user domain.UserID, state domain.MemberState) (bool, error)
	// ClaimChannel atomically makes owner the channel's single owner. It reports
	// false when the channel is already claimed or has members.
	ClaimChannel(channel domain.ChannelID, owner domain.UserID, state domain.MemberState) (bool, error)
	Owner(channel domain.ChannelID) (domain.UserID, bool, error)
	Get(channel domain.ChannelID, user domain.UserID) (domain.MemberState, bool, error)
	Set(channel domain.ChannelID, user domain.UserID, state domain.MemberState) error
	Delete(channel domain.ChannelID, user domain.UserID) error
	// DeleteChannel drops every entry of the channel, owner included.
	DeleteChannel(channel domain.ChannelID) error
	Members(channel domain.ChannelID) ([]domain.Member, error)
	Close() error
}
