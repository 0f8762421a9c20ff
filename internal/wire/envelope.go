// Package wire defines the JSON event envelope exchanged over a chat
// channel and its codec. The envelope is a closed tagged union: every
// frame decodes to exactly one of the six variants below or fails.
package wire

import (
	"encoding/json"
	"fmt"
)

// Type literals carried in the "type" discriminant field.
const (
	TypeConnect        = "connect"
	TypeDisconnect     = "disconnect"
	TypeChatMessage    = "chat_message"
	TypeRosterSnapshot = "connected_users"
	TypeMemberJoined   = "user_joined"
	TypeMemberLeft     = "user_left"
)

// Envelope is one discrete event on the wire. The set of
// implementations is sealed; dispatch over it is exhaustive.
type Envelope interface {
	envelopeType() string
}

// Connect announces the sender right after a connection opens.
type Connect struct {
	ActorID   int64
	ActorName string
}

// Disconnect announces the sender before a deliberate close.
type Disconnect struct {
	ActorID   int64
	ActorName string
}

// ChatMessage is a user-authored message.
type ChatMessage struct {
	ActorID   int64
	ActorName string
	Content   string
}

// RosterSnapshot declares everyone currently present in the channel.
// The server sends it once per connection, right after accept.
type RosterSnapshot struct {
	MemberIDs []int64
}

// MemberJoined is an incremental presence addition.
type MemberJoined struct {
	MemberIDs []int64
}

// MemberLeft is an incremental presence removal.
type MemberLeft struct {
	MemberIDs []int64
}

func (Connect) envelopeType() string        { return TypeConnect }
func (Disconnect) envelopeType() string     { return TypeDisconnect }
func (ChatMessage) envelopeType() string    { return TypeChatMessage }
func (RosterSnapshot) envelopeType() string { return TypeRosterSnapshot }
func (MemberJoined) envelopeType() string   { return TypeMemberJoined }
func (MemberLeft) envelopeType() string     { return TypeMemberLeft }

// DecodeError reports a frame that does not match any known variant.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// frame is the flat JSON shape shared by all variants. Pointer fields
// distinguish absent from zero-valued.
type frame struct {
	Type     string   `json:"type"`
	ID       *int64   `json:"id,omitempty"`
	Username *string  `json:"username,omitempty"`
	Content  *string  `json:"content,omitempty"`
	UserIDs  *[]int64 `json:"user_ids,omitempty"`
}

// Encode serializes an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	var f frame
	switch v := env.(type) {
	case Connect:
		f = frame{Type: TypeConnect, ID: &v.ActorID, Username: &v.ActorName}
	case Disconnect:
		f = frame{Type: TypeDisconnect, ID: &v.ActorID, Username: &v.ActorName}
	case ChatMessage:
		f = frame{Type: TypeChatMessage, ID: &v.ActorID, Username: &v.ActorName, Content: &v.Content}
	case RosterSnapshot:
		ids := nonNil(v.MemberIDs)
		f = frame{Type: TypeRosterSnapshot, UserIDs: &ids}
	case MemberJoined:
		ids := nonNil(v.MemberIDs)
		f = frame{Type: TypeMemberJoined, UserIDs: &ids}
	case MemberLeft:
		ids := nonNil(v.MemberIDs)
		f = frame{Type: TypeMemberLeft, UserIDs: &ids}
	default:
		return nil, fmt.Errorf("encode envelope: unknown variant %T", env)
	}
	return json.Marshal(f)
}

// Decode parses a wire frame into a typed envelope. There is no
// partial decoding: any unrecognized type or missing/mistyped required
// field fails with *DecodeError.
func Decode(data []byte) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}

	switch f.Type {
	case TypeConnect:
		if f.ID == nil || f.Username == nil {
			return nil, &DecodeError{Reason: "connect requires id and username"}
		}
		return Connect{ActorID: *f.ID, ActorName: *f.Username}, nil
	case TypeDisconnect:
		if f.ID == nil || f.Username == nil {
			return nil, &DecodeError{Reason: "disconnect requires id and username"}
		}
		return Disconnect{ActorID: *f.ID, ActorName: *f.Username}, nil
	case TypeChatMessage:
		if f.ID == nil || f.Username == nil || f.Content == nil {
			return nil, &DecodeError{Reason: "chat_message requires id, username and content"}
		}
		return ChatMessage{ActorID: *f.ID, ActorName: *f.Username, Content: *f.Content}, nil
	case TypeRosterSnapshot:
		if f.UserIDs == nil {
			return nil, &DecodeError{Reason: "connected_users requires user_ids"}
		}
		return RosterSnapshot{MemberIDs: *f.UserIDs}, nil
	case TypeMemberJoined:
		if f.UserIDs == nil {
			return nil, &DecodeError{Reason: "user_joined requires user_ids"}
		}
		return MemberJoined{MemberIDs: *f.UserIDs}, nil
	case TypeMemberLeft:
		if f.UserIDs == nil {
			return nil, &DecodeError{Reason: "user_left requires user_ids"}
		}
		return MemberLeft{MemberIDs: *f.UserIDs}, nil
	case "":
		return nil, &DecodeError{Reason: "missing type field"}
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown type %q", f.Type)}
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
