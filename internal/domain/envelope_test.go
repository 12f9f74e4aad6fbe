package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	req := require.New(t)

	env, err := DecodeEnvelope([]byte(`{"sender_user_id":"owner","sender_role":0,"message_type":3,"channel_id":"c1","recipient_user_id":"p1"}`))
	req.NoError(err)
	req.Equal(UserID("owner"), env.SenderUserID)
	req.Equal(RoleOwner, env.SenderRole)
	req.Equal(MessageAcceptRequest, env.MessageType)
	req.Equal(ChannelID("c1"), env.ChannelID)
	req.Equal(UserID("p1"), env.Recipient())
	req.Nil(env.Message)
	req.False(env.Approved())
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown type", `{"sender_user_id":"p1","sender_role":1,"message_type":6,"channel_id":"c1"}`, ErrUnknownMessageType},
		{"negative type", `{"sender_user_id":"p1","sender_role":1,"message_type":-1,"channel_id":"c1"}`, ErrUnknownMessageType},
		{"missing type", `{"sender_user_id":"p1","sender_role":1,"channel_id":"c1"}`, ErrMissingMessageType},
		{"unknown role", `{"sender_user_id":"p1","sender_role":7,"message_type":1,"channel_id":"c1"}`, ErrUnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.raw))
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestEnvelope_EncodeOmitsAbsentFields(t *testing.T) {
	req := require.New(t)

	raw, err := NewJoinRequest("c1", "p1").Encode()
	req.NoError(err)
	req.JSONEq(`{"sender_user_id":"p1","sender_role":1,"message_type":0,"channel_id":"c1","message":"User: p1 is requesting to join the game"}`, string(raw))

	raw, err = Envelope{SenderUserID: "p1", SenderRole: RolePlayer, MessageType: MessageSend, ChannelID: "c1"}.WithApproval(RolePlayer, false).Encode()
	req.NoError(err)
	req.JSONEq(`{"sender_user_id":"p1","sender_role":1,"message_type":1,"channel_id":"c1","is_approved":false}`, string(raw))
}

func TestSessionError(t *testing.T) {
	req := require.New(t)

	err := error(NewSessionError(KindDuplicateChannel, "c1"))
	req.ErrorIs(err, ErrDuplicateChannel)
	req.True(IsSessionError(err))
	req.Equal("duplicate channel already exists", err.Error())

	req.ErrorIs(NewSessionError(KindChannelNotFound, "c1"), ErrChannelNotFound)
	req.ErrorIs(NewSessionError(KindSessionEnded, "c1"), ErrSessionEnded)
	req.False(IsSessionError(errors.New("plain")))

	exc := NewException("c1", "p1", err)
	req.Equal(MessageExceptionOccurred, exc.MessageType)
	req.Equal("duplicate channel already exists", exc.Text())
}

func TestMemberState(t *testing.T) {
	req := require.New(t)

	owner := NewOwnerState()
	req.True(owner.Approved)
	req.True(owner.IsOwner())

	player := NewPlayerState()
	req.False(player.Approved)
	approved := player.Approve()
	req.True(approved.Approved)
	req.False(player.Approved)
	req.Equal(RolePlayer, approved.Role)
}

func TestValidateIDs(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateUserID("p1"))
	req.ErrorIs(ValidateUserID(""), ErrIDEmpty)
	req.ErrorIs(ValidateChannelID(ChannelID(make([]byte, MaxChannelIDLen+1))), ErrIDTooLong)
	req.ErrorIs(ValidateChannelID("a/b"), ErrIDInvalid)
}
