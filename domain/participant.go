// Package domain contains core concepts of the marketplace messaging system:
// participants, conversations and messages, with their identity and
// mutation rules. No network or persistence logic should be added here.
package domain

import (
	"strings"
	"sync"
)

// Role discriminates the two participant kinds. There is no deeper
// hierarchy; seller-only state lives behind the tag.
type Role int

const (
	RoleCustomer Role = iota
	RoleSeller
)

func (r Role) String() string {
	if r == RoleSeller {
		return "SELLER"
	}
	return "CUSTOMER"
}

// ParseRole maps the persisted role token back to a Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "SELLER":
		return RoleSeller, true
	case "CUSTOMER":
		return RoleCustomer, true
	}
	return RoleCustomer, false
}

// Participant is a registered customer or seller. The email is the identity
// key and never changes after registration. All other fields are guarded by
// the participant's own lock so concurrent connections can mutate and read
// the same account safely.
type Participant struct {
	email string
	role  Role

	mu             sync.RWMutex
	name           string
	passwordHash   string
	blockedPhrases map[string]string
	blockedEmails  []string
	invisibleTo    []string
	storeNames     []string // sellers only
}

// NewParticipant builds a participant. Email and name validity and email
// uniqueness are the registry's concern, not this constructor's.
func NewParticipant(role Role, name, email, passwordHash string, blockedPhrases map[string]string) *Participant {
	if blockedPhrases == nil {
		blockedPhrases = make(map[string]string)
	}
	return &Participant{
		email:          email,
		role:           role,
		name:           name,
		passwordHash:   passwordHash,
		blockedPhrases: blockedPhrases,
	}
}

func (p *Participant) Email() string { return p.email }
func (p *Participant) Role() Role    { return p.role }

func (p *Participant) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Participant) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Participant) PasswordHash() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.passwordHash
}

func (p *Participant) SetPasswordHash(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwordHash = hash
}

// BlockPeer appends to the blocked list. Repeated calls may append
// duplicates; no dedup is promised.
func (p *Participant) BlockPeer(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockedEmails = append(p.blockedEmails, email)
}

func (p *Participant) HasBlocked(email string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.blockedEmails {
		if e == email {
			return true
		}
	}
	return false
}

func (p *Participant) BlockedEmails() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.blockedEmails...)
}

// HideFromPeer makes this participant invisible to the given email.
func (p *Participant) HideFromPeer(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invisibleTo = append(p.invisibleTo, email)
}

func (p *Participant) IsInvisibleTo(email string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.invisibleTo {
		if e == email {
			return true
		}
	}
	return false
}

func (p *Participant) InvisibleTo() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.invisibleTo...)
}

// AddBlockedPhrase registers a phrase to hide from this participant's view
// of message content. An empty replacement masks the phrase with stars.
func (p *Participant) AddBlockedPhrase(phrase, replacement string) {
	if replacement == "" {
		replacement = strings.Repeat("*", len(phrase))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockedPhrases[phrase] = replacement
}

// RemoveBlockedPhrase reports whether the phrase was previously blocked.
func (p *Participant) RemoveBlockedPhrase(phrase string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.blockedPhrases[phrase]
	delete(p.blockedPhrases, phrase)
	return ok
}

// BlockedPhrases returns a snapshot of the phrase to replacement mapping.
func (p *Participant) BlockedPhrases() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.blockedPhrases))
	for k, v := range p.blockedPhrases {
		out[k] = v
	}
	return out
}

// AddStore appends a store name. Only meaningful for sellers; the store
// order is preserved for listings.
func (p *Participant) AddStore(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeNames = append(p.storeNames, name)
}

// RemoveStore reports whether the store previously existed.
func (p *Participant) RemoveStore(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.storeNames {
		if s == name {
			p.storeNames = append(p.storeNames[:i], p.storeNames[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Participant) HasStore(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.storeNames {
		if s == name {
			return true
		}
	}
	return false
}

func (p *Participant) Stores() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.storeNames...)
}
