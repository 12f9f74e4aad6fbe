package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lobby/internal/domain"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_InsertIfAbsent(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	ok, err := s.InsertIfAbsent("c1", "owner", domain.NewOwnerState())
	req.NoError(err)
	req.True(ok)

	ok, err = s.InsertIfAbsent("c1", "owner", domain.NewPlayerState())
	req.NoError(err)
	req.False(ok)

	state, found, err := s.Get("c1", "owner")
	req.NoError(err)
	req.True(found)
	req.Equal(domain.NewOwnerState(), state)
}

func TestBadgerStore_Exists(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	exists, err := s.Exists("c1")
	req.NoError(err)
	req.False(exists)

	_, err = s.InsertIfAbsent("c1", "p1", domain.NewPlayerState())
	req.NoError(err)

	exists, err = s.Exists("c1")
	req.NoError(err)
	req.True(exists)

	// "c" is a prefix of "c1" but a different channel.
	exists, err = s.Exists("c")
	req.NoError(err)
	req.False(exists)

	req.NoError(s.Delete("c1", "p1"))
	exists, err = s.Exists("c1")
	req.NoError(err)
	req.False(exists)
}

func TestBadgerStore_SetAndDelete(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	_, err := s.InsertIfAbsent("c1", "p1", domain.NewPlayerState())
	req.NoError(err)
	req.NoError(s.Set("c1", "p1", domain.NewPlayerState().Approve()))

	state, found, err := s.Get("c1", "p1")
	req.NoError(err)
	req.True(found)
	req.True(state.Approved)
	req.Equal(domain.RolePlayer, state.Role)

	req.NoError(s.Delete("c1", "p1"))
	req.NoError(s.Delete("c1", "p1"))

	_, found, err = s.Get("c1", "p1")
	req.NoError(err)
	req.False(found)
}

func TestBadgerStore_Members(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	_, err := s.InsertIfAbsent("c1", "owner", domain.NewOwnerState())
	req.NoError(err)
	_, err = s.InsertIfAbsent("c1", "alice", domain.NewPlayerState())
	req.NoError(err)
	_, err = s.InsertIfAbsent("c2", "bob", domain.NewPlayerState())
	req.NoError(err)

	members, err := s.Members("c1")
	req.NoError(err)
	req.Equal([]domain.Member{
		{UserID: "alice", Role: domain.RolePlayer, Approved: false},
		{UserID: "owner", Role: domain.RoleOwner, Approved: true},
	}, members)

	members, err = s.Members("c3")
	req.NoError(err)
	req.Empty(members)
}

func TestBadgerStore_ClaimChannel(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	claimed, err := s.ClaimChannel("c1", "alice", domain.NewOwnerState())
	req.NoError(err)
	req.True(claimed)

	claimed, err = s.ClaimChannel("c1", "bob", domain.NewOwnerState())
	req.NoError(err)
	req.False(claimed)

	owner, ok, err := s.Owner("c1")
	req.NoError(err)
	req.True(ok)
	req.Equal(domain.UserID("alice"), owner)

	members, err := s.Members("c1")
	req.NoError(err)
	req.Equal([]domain.Member{{UserID: "alice", Role: domain.RoleOwner, Approved: true}}, members)

	// A channel that still has members cannot be claimed either.
	_, err = s.InsertIfAbsent("c2", "p1", domain.NewPlayerState())
	req.NoError(err)
	claimed, err = s.ClaimChannel("c2", "carol", domain.NewOwnerState())
	req.NoError(err)
	req.False(claimed)
}

func TestBadgerStore_DeleteChannel(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	_, err := s.ClaimChannel("c1", "owner", domain.NewOwnerState())
	req.NoError(err)
	_, err = s.InsertIfAbsent("c1", "p1", domain.NewPlayerState())
	req.NoError(err)
	_, err = s.InsertIfAbsent("c10", "p2", domain.NewPlayerState())
	req.NoError(err)

	req.NoError(s.DeleteChannel("c1"))

	exists, err := s.Exists("c1")
	req.NoError(err)
	req.False(exists)
	_, ok, err := s.Owner("c1")
	req.NoError(err)
	req.False(ok)

	exists, err = s.Exists("c10")
	req.NoError(err)
	req.True(exists)

	claimed, err := s.ClaimChannel("c1", "newowner", domain.NewOwnerState())
	req.NoError(err)
	req.True(claimed)
}
