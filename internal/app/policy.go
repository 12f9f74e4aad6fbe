package app

import "fmt"

// ApprovalKey selects the member key an AcceptRequest approval is written under.
type ApprovalKey int

const (
	// ApproveRecipient writes the approval under recipient_user_id.
	ApproveRecipient ApprovalKey = iota
	// ApproveSender writes the recipient's approved state under the sender's
	// key. This matches what older deployments did and is kept for
	// compatibility only.
	ApproveSender
)

func ParseApprovalKey(s string) (ApprovalKey, error) {
	switch s {
	case "", "recipient":
		return ApproveRecipient, nil
	case "sender":
		return ApproveSender, nil
	}
	return 0, fmt.Errorf("unknown approval key %q", s)
}

type BackpressureAction int

const (
	DropEnvelope BackpressureAction = iota
	CloseConnection
)

func ParseBackpressureAction(s string) (BackpressureAction, error) {
	switch s {
	case "", "drop":
		return DropEnvelope, nil
	case "close":
		return CloseConnection, nil
	}
	return 0, fmt.Errorf("unknown backpressure action %q", s)
}

type Policy struct {
	ApprovalKey          ApprovalKey
	DeclineRemovesMember bool
	Backpressure         BackpressureAction
}

func DefaultPolicy() Policy {
	return Policy{ApprovalKey: ApproveRecipient, Backpressure: DropEnvelope}
}

// OnBackPressure decides what a router does when its connection cannot keep up.
func (p Policy) OnBackPressure() BackpressureAction {
	return p.Backpressure
}
