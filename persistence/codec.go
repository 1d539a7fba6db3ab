// Package persistence encodes the directory and conversation store to the
// delimited flat-file layout and reads it back. The escaping rules are the
// format's contract: the field delimiter, line breaks and the reserved
// user-line prefixes must survive a round trip through any field.
package persistence

import (
	"fmt"
	"strconv"
	"strings"

	"marketchat/domain"
)

const (
	// Delimiter separates fields within one line.
	Delimiter = ";;"
	// delimiterMark replaces a literal delimiter inside a field. The
	// interleaved backslashes keep the split on ";;" unambiguous.
	delimiterMark = `\;\;\`
	// newlineMark replaces embedded line breaks with a two-character literal.
	newlineMark = `\n`

	// Reserved user-line prefixes for the order-independent extra fields.
	prefixStore     = "S_"
	prefixInvisible = "I_"
	prefixBlocked   = "B_"
)

// escapeField protects the delimiter and line breaks. Used for every field
// of conversation files and the fixed user-line fields.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, Delimiter, delimiterMark)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", newlineMark)
}

func unescapeField(s string) string {
	s = strings.ReplaceAll(s, newlineMark, "\n")
	return strings.ReplaceAll(s, delimiterMark, Delimiter)
}

// escapeTagged additionally hides the reserved prefixes so field content
// starting with "B_", "I_" or "S_" cannot be mistaken for a tag on read.
func escapeTagged(s string) string {
	s = escapeField(s)
	s = strings.ReplaceAll(s, prefixBlocked, `B\_`)
	s = strings.ReplaceAll(s, prefixInvisible, `I\_`)
	return strings.ReplaceAll(s, prefixStore, `S\_`)
}

func unescapeTagged(s string) string {
	s = strings.ReplaceAll(s, `B\_`, prefixBlocked)
	s = strings.ReplaceAll(s, `I\_`, prefixInvisible)
	s = strings.ReplaceAll(s, `S\_`, prefixStore)
	return unescapeField(s)
}

// EncodeUserLine renders one participant as a users-file line:
// email, email, role, name, password hash, then the tagged extras in any
// order. The email appears twice for compatibility with the historical
// id-then-email layout.
func EncodeUserLine(p *domain.Participant) string {
	fields := []string{
		escapeTagged(p.Email()),
		escapeTagged(p.Email()),
		p.Role().String(),
		escapeTagged(p.Name()),
		escapeTagged(p.PasswordHash()),
	}
	for _, s := range p.Stores() {
		fields = append(fields, prefixStore+escapeTagged(s))
	}
	for _, e := range p.InvisibleTo() {
		fields = append(fields, prefixInvisible+escapeTagged(e))
	}
	for _, e := range p.BlockedEmails() {
		fields = append(fields, prefixBlocked+escapeTagged(e))
	}
	return strings.Join(fields, Delimiter)
}

// DecodeUserLine rebuilds a participant from a users-file line. Unknown
// extra-field prefixes are reported so the caller can log and move on;
// they never fail the line.
func DecodeUserLine(line string) (*domain.Participant, []string, error) {
	split := strings.Split(line, Delimiter)
	if len(split) < 5 {
		return nil, nil, fmt.Errorf("user line has %d fields, want at least 5", len(split))
	}
	role, ok := domain.ParseRole(split[2])
	if !ok {
		return nil, nil, fmt.Errorf("unknown role %q", split[2])
	}

	p := domain.NewParticipant(role, unescapeTagged(split[3]), unescapeTagged(split[1]), unescapeTagged(split[4]), nil)

	var unknown []string
	for _, field := range split[5:] {
		if len(field) < 2 {
			continue
		}
		tag, rest := field[:2], unescapeTagged(field[2:])
		switch tag {
		case prefixStore:
			if rest != "" {
				p.AddStore(rest)
			}
		case prefixInvisible:
			p.HideFromPeer(rest)
		case prefixBlocked:
			p.BlockPeer(rest)
		default:
			unknown = append(unknown, tag)
		}
	}
	return p, unknown, nil
}

// EncodeConversationHeader renders the first line of a conversation file:
// seller email, store (empty when unscoped), customer email, disappearing.
func EncodeConversationHeader(c *domain.Conversation) string {
	return strings.Join([]string{
		escapeField(c.Seller().Email()),
		escapeField(c.Store()),
		escapeField(c.Customer().Email()),
		strconv.FormatBool(c.Disappearing()),
	}, Delimiter)
}

// ConversationHeader is the decoded form of a conversation file's first line.
type ConversationHeader struct {
	SellerEmail   string
	Store         string
	CustomerEmail string
	Disappearing  bool
}

func DecodeConversationHeader(line string) (ConversationHeader, error) {
	split := strings.Split(line, Delimiter)
	if len(split) != 4 {
		return ConversationHeader{}, fmt.Errorf("conversation header has %d fields, want 4", len(split))
	}
	disappearing, err := strconv.ParseBool(split[3])
	if err != nil {
		return ConversationHeader{}, fmt.Errorf("disappearing flag: %w", err)
	}
	return ConversationHeader{
		SellerEmail:   unescapeField(split[0]),
		Store:         unescapeField(split[1]),
		CustomerEmail: unescapeField(split[2]),
		Disappearing:  disappearing,
	}, nil
}

// EncodeMessageLine renders one history entry: timestamp, sender role, the
// two view flags, content. Sender identity is recoverable from the role
// because a conversation has exactly one endpoint per role.
func EncodeMessageLine(c *domain.Conversation, m *domain.Message) string {
	senderRole := domain.RoleSeller
	if m.SenderEmail == c.Customer().Email() {
		senderRole = domain.RoleCustomer
	}
	return strings.Join([]string{
		strconv.FormatInt(m.SentAt, 10),
		senderRole.String(),
		strconv.FormatBool(m.CanSenderView),
		strconv.FormatBool(m.CanReceiverView),
		escapeField(m.Content),
	}, Delimiter)
}

// DecodeMessageLine rebuilds a message for the conversation identified by
// the header, resolving sender and receiver from the persisted role.
func DecodeMessageLine(line string, header ConversationHeader) (*domain.Message, error) {
	split := strings.Split(line, Delimiter)
	if len(split) != 5 {
		return nil, fmt.Errorf("message line has %d fields, want 5", len(split))
	}
	sentAt, err := strconv.ParseInt(split[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	role, ok := domain.ParseRole(split[1])
	if !ok {
		return nil, fmt.Errorf("unknown sender role %q", split[1])
	}
	canSenderView, err := strconv.ParseBool(split[2])
	if err != nil {
		return nil, fmt.Errorf("sender view flag: %w", err)
	}
	canReceiverView, err := strconv.ParseBool(split[3])
	if err != nil {
		return nil, fmt.Errorf("receiver view flag: %w", err)
	}

	sender, receiver := header.SellerEmail, header.CustomerEmail
	if role == domain.RoleCustomer {
		sender, receiver = header.CustomerEmail, header.SellerEmail
	}
	return domain.RestoredMessage(sender, receiver, canSenderView, canReceiverView, unescapeField(split[4]), sentAt), nil
}
