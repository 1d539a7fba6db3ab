package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Version is the wire schema version carried in every value envelope.
// Decoders reject anything else.
const Version = 1

// maxValueSize caps a single value frame. Anything larger is a corrupt or
// hostile stream, not a legitimate argument.
const maxValueSize = 16 << 20

// Kind tags what a value envelope carries, so a decoder mismatch is a typed
// error instead of a silent misread.
type Kind string

const (
	KindNull             Kind = "null"
	KindString           Kind = "string"
	KindBool             Kind = "bool"
	KindInt64            Kind = "int64"
	KindStringMap        Kind = "stringMap"
	KindStringList       Kind = "stringList"
	KindUser             Kind = "user"
	KindUserList         Kind = "userList"
	KindConversation     Kind = "conversation"
	KindConversationList Kind = "conversationList"
	KindMessage          Kind = "message"
)

// UserRecord is a participant on the wire.
type UserRecord struct {
	Email          string            `json:"email"`
	Name           string            `json:"name"`
	Role           string            `json:"role"`
	Stores         []string          `json:"stores,omitempty"`
	BlockedEmails  []string          `json:"blockedEmails,omitempty"`
	InvisibleTo    []string          `json:"invisibleTo,omitempty"`
	BlockedPhrases map[string]string `json:"blockedPhrases,omitempty"`
}

// ConversationRecord identifies a conversation; responses also carry the
// history.
type ConversationRecord struct {
	SellerEmail   string          `json:"sellerEmail"`
	CustomerEmail string          `json:"customerEmail"`
	Store         string          `json:"store"`
	Disappearing  bool            `json:"disappearing"`
	Messages      []MessageRecord `json:"messages,omitempty"`
}

// MessageRecord is one history entry on the wire. The optional parent names
// the conversation the message is destined for.
type MessageRecord struct {
	SenderEmail     string              `json:"senderEmail"`
	ReceiverEmail   string              `json:"receiverEmail"`
	CanSenderView   bool                `json:"canSenderView"`
	CanReceiverView bool                `json:"canReceiverView"`
	Content         string              `json:"content"`
	SentAt          int64               `json:"sentAt"`
	Parent          *ConversationRecord `json:"parent,omitempty"`
}

// Value is the envelope framing every argument and response.
type Value struct {
	Version       int                  `json:"v"`
	Kind          Kind                 `json:"kind"`
	Str           string               `json:"str,omitempty"`
	Bool          bool                 `json:"bool,omitempty"`
	Int           int64                `json:"int,omitempty"`
	Map           map[string]string    `json:"map,omitempty"`
	List          []string             `json:"list,omitempty"`
	User          *UserRecord          `json:"user,omitempty"`
	Users         []UserRecord         `json:"users,omitempty"`
	Conversation  *ConversationRecord  `json:"conversation,omitempty"`
	Conversations []ConversationRecord `json:"conversations,omitempty"`
	Message       *MessageRecord       `json:"message,omitempty"`
}

func Null() Value                                { return Value{Version: Version, Kind: KindNull} }
func String(s string) Value                      { return Value{Version: Version, Kind: KindString, Str: s} }
func Bool(b bool) Value                          { return Value{Version: Version, Kind: KindBool, Bool: b} }
func Int64(n int64) Value                        { return Value{Version: Version, Kind: KindInt64, Int: n} }
func StringMap(m map[string]string) Value        { return Value{Version: Version, Kind: KindStringMap, Map: m} }
func StringList(l []string) Value                { return Value{Version: Version, Kind: KindStringList, List: l} }
func User(u UserRecord) Value                    { return Value{Version: Version, Kind: KindUser, User: &u} }
func UserList(us []UserRecord) Value             { return Value{Version: Version, Kind: KindUserList, Users: us} }
func Conversation(c ConversationRecord) Value    { return Value{Version: Version, Kind: KindConversation, Conversation: &c} }
func ConversationList(cs []ConversationRecord) Value {
	return Value{Version: Version, Kind: KindConversationList, Conversations: cs}
}
func Message(m MessageRecord) Value { return Value{Version: Version, Kind: KindMessage, Message: &m} }

// IsNull reports whether the value is the null placeholder.
func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) kindError(want Kind) error {
	return fmt.Errorf("wire value is %s, want %s", v.Kind, want)
}

func (v Value) AsString() (string, error) {
	if v.Kind != KindString {
		return "", v.kindError(KindString)
	}
	return v.Str, nil
}

func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, v.kindError(KindBool)
	}
	return v.Bool, nil
}

func (v Value) AsInt64() (int64, error) {
	if v.Kind != KindInt64 {
		return 0, v.kindError(KindInt64)
	}
	return v.Int, nil
}

func (v Value) AsStringMap() (map[string]string, error) {
	if v.Kind != KindStringMap {
		return nil, v.kindError(KindStringMap)
	}
	return v.Map, nil
}

func (v Value) AsStringList() ([]string, error) {
	if v.Kind != KindStringList {
		return nil, v.kindError(KindStringList)
	}
	return v.List, nil
}

func (v Value) AsUser() (UserRecord, error) {
	if v.Kind != KindUser || v.User == nil {
		return UserRecord{}, v.kindError(KindUser)
	}
	return *v.User, nil
}

func (v Value) AsConversation() (ConversationRecord, error) {
	if v.Kind != KindConversation || v.Conversation == nil {
		return ConversationRecord{}, v.kindError(KindConversation)
	}
	return *v.Conversation, nil
}

func (v Value) AsMessage() (MessageRecord, error) {
	if v.Kind != KindMessage || v.Message == nil {
		return MessageRecord{}, v.kindError(KindMessage)
	}
	return *v.Message, nil
}

// WriteValue frames one value: 4-byte big-endian payload length, then the
// JSON envelope.
func WriteValue(w io.Writer, v Value) error {
	v.Version = Version
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode wire value: %w", err)
	}
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(payload)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadValue reads one framed value, rejecting oversized frames and unknown
// schema versions.
func ReadValue(r io.Reader) (Value, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Value{}, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size > maxValueSize {
		return Value{}, fmt.Errorf("wire value of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Value{}, err
	}
	var v Value
	if err := json.Unmarshal(payload, &v); err != nil {
		return Value{}, fmt.Errorf("decode wire value: %w", err)
	}
	if v.Version != Version {
		return Value{}, fmt.Errorf("unsupported wire version %d", v.Version)
	}
	return v, nil
}

// WriteRequest frames a request head and its arguments.
func WriteRequest(w io.Writer, op Opcode, args ...Value) error {
	if _, err := w.Write([]byte{byte(op), byte(len(args))}); err != nil {
		return err
	}
	for _, a := range args {
		if err := WriteValue(w, a); err != nil {
			return err
		}
	}
	return nil
}

// ReadRequestHead reads the opcode and declared-argument-count bytes.
func ReadRequestHead(r io.Reader) (Opcode, int, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, 0, err
	}
	return Opcode(head[0]), int(head[1]), nil
}
