// Package store owns the shared in-memory state: the participant directory
// and the conversation list. Nothing else in the program holds these
// collections; the dispatcher and the persistence layer receive a handle
// and go through the methods here, which carry the synchronization.
package store

import (
	"strings"
	"sync"

	"github.com/samber/lo"

	"marketchat/auth"
	"marketchat/domain"
	"marketchat/errors"
)

// Directory is the registry of participant identities, keyed by email.
type Directory struct {
	mu     sync.RWMutex
	byMail map[string]*domain.Participant
	order  []string // registration order, for stable listings
}

func NewDirectory() *Directory {
	return &Directory{byMail: make(map[string]*domain.Participant)}
}

// Register validates and inserts a new participant. Seller store names are
// only meaningful with RoleSeller and may be empty.
func (d *Directory) Register(role domain.Role, name, email, password string, blockedPhrases map[string]string, storeNames ...string) (*domain.Participant, error) {
	if err := auth.ValidateRegister(auth.RegisterRequest{Name: name, Email: email, Password: password}); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	p := domain.NewParticipant(role, name, email, hash, nil)
	// Route through AddBlockedPhrase so the empty-replacement rule applies
	// to registration-time phrases too.
	for phrase, replacement := range blockedPhrases {
		p.AddBlockedPhrase(phrase, replacement)
	}
	for _, s := range storeNames {
		p.AddStore(s)
	}
	if err := d.Insert(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Insert adds an already-built participant, failing on a duplicate email.
// Used by Register and by the persistence loader, which carries stored
// hashes rather than plaintext.
func (d *Directory) Insert(p *domain.Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byMail[p.Email()]; ok {
		return errors.ErrDuplicateEmail
	}
	d.byMail[p.Email()] = p
	d.order = append(d.order, p.Email())
	return nil
}

// Authenticate verifies the password against the stored hash. Unknown
// emails authenticate as false, not as an error.
func (d *Directory) Authenticate(email, password string) bool {
	p := d.Lookup(email)
	if p == nil {
		return false
	}
	ok, err := auth.VerifyPassword(password, p.PasswordHash())
	return err == nil && ok
}

func (d *Directory) Lookup(email string) *domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byMail[email]
}

func (d *Directory) Exists(email string) bool {
	return d.Lookup(email) != nil
}

// Remove deletes the account. Conversations referencing it stay in memory;
// the persistence layer stops indexing them so they are not reloaded.
func (d *Directory) Remove(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byMail[email]; !ok {
		return
	}
	delete(d.byMail, email)
	for i, e := range d.order {
		if e == email {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// All returns every participant in registration order.
func (d *Directory) All() []*domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Map(d.order, func(email string, _ int) *domain.Participant {
		return d.byMail[email]
	})
}

func (d *Directory) allWithRole(role domain.Role) []*domain.Participant {
	return lo.Filter(d.All(), func(p *domain.Participant, _ int) bool {
		return p.Role() == role
	})
}

func (d *Directory) AllSellers() []*domain.Participant {
	return d.allWithRole(domain.RoleSeller)
}

func (d *Directory) AllCustomers() []*domain.Participant {
	return d.allWithRole(domain.RoleCustomer)
}

// ListCustomers renders every customer as an "email : name" line.
func (d *Directory) ListCustomers() string {
	lines := lo.Map(d.AllCustomers(), func(p *domain.Participant, _ int) string {
		return p.Email() + " : " + p.Name()
	})
	return strings.Join(lines, "\n")
}

// AllStoresAsString returns every seller's stores, one per line, in
// registration then store-insertion order.
func (d *Directory) AllStoresAsString() string {
	var stores []string
	for _, s := range d.AllSellers() {
		stores = append(stores, s.Stores()...)
	}
	return strings.Join(stores, "\n")
}

// SellerFromStore returns the first seller whose store list contains the
// name. Store names are not unique across sellers; first registered wins.
func (d *Directory) SellerFromStore(storeName string) *domain.Participant {
	for _, s := range d.AllSellers() {
		if s.HasStore(storeName) {
			return s
		}
	}
	return nil
}
