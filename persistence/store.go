package persistence

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"marketchat/domain"
	"marketchat/store"
)

const (
	fileExt          = ".ssv"
	usersFile        = "users" + fileExt
	conversationList = "conversation_list" + fileExt
)

// FileStore reads and writes the whole program state under one data
// directory: a users file, one file per conversation named by a content
// hash of its identity, and an index file listing the hashes so a reload
// never scans the directory.
type FileStore struct {
	dir string
	log *slog.Logger

	// Comment lines (leading ";") found in the users file are kept and
	// written back on save.
	comments []string
}

func NewFileStore(dir string, log *slog.Logger) *FileStore {
	return &FileStore{dir: dir, log: log}
}

// ConversationFileName hashes the identity triple into the on-disk name, so
// the same conversation always lands in the same file.
func ConversationFileName(customerEmail, sellerEmail, storeName string) string {
	sum := md5.Sum([]byte(customerEmail + "_" + sellerEmail + "_" + storeName))
	return hex.EncodeToString(sum[:])
}

// Save serializes the directory and every conversation. Conversations with
// a deleted endpoint are still written, but left out of the index so the
// next load skips them. Returns the first fatal I/O error; per-file
// problems are logged and skipped.
func (f *FileStore) Save(directory *store.Directory, conversations *store.ConversationStore) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	var users strings.Builder
	for _, comment := range f.comments {
		users.WriteString(comment + "\n")
	}
	for _, p := range directory.All() {
		users.WriteString(EncodeUserLine(p) + "\n")
	}
	if err := os.WriteFile(filepath.Join(f.dir, usersFile), []byte(users.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", usersFile, err)
	}

	var index []string
	seen := make(map[string]bool)
	for _, c := range conversations.All() {
		name := ConversationFileName(c.Customer().Email(), c.Seller().Email(), c.Store())
		if seen[name] {
			continue
		}
		if directory.Exists(c.Customer().Email()) && directory.Exists(c.Seller().Email()) {
			seen[name] = true
			index = append(index, name)
		}

		var sb strings.Builder
		sb.WriteString(EncodeConversationHeader(c) + "\n")
		for _, m := range c.Messages() {
			sb.WriteString(EncodeMessageLine(c, m) + "\n")
		}
		if err := os.WriteFile(filepath.Join(f.dir, name+fileExt), []byte(sb.String()), 0o644); err != nil {
			f.log.Error("writing conversation file", "file", name, "error", err)
		}
	}

	indexBody := strings.Join(index, "\n")
	if indexBody != "" {
		indexBody += "\n"
	}
	if err := os.WriteFile(filepath.Join(f.dir, conversationList), []byte(indexBody), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", conversationList, err)
	}
	return nil
}

// Load rebuilds the directory first, then every indexed conversation.
// Missing files, conversations whose endpoints no longer exist, and
// malformed lines are logged and skipped; only a missing data directory is
// silent, since a first run has nothing to load.
func (f *FileStore) Load(directory *store.Directory, conversations *store.ConversationStore) error {
	if err := f.loadUsers(directory); err != nil {
		return err
	}
	for _, id := range f.readIndex() {
		f.loadConversation(id, directory, conversations)
	}
	return nil
}

func (f *FileStore) loadUsers(directory *store.Directory) error {
	lines, err := f.readLines(usersFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", usersFile, err)
	}

	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ";") {
			f.comments = append(f.comments, line)
			continue
		}
		p, unknown, err := DecodeUserLine(line)
		if err != nil {
			f.log.Error("rebuilding user line", "line", line, "error", err)
			continue
		}
		for _, tag := range unknown {
			f.log.Warn("unrecognised prefix in user line", "prefix", tag, "email", p.Email())
		}
		if err := directory.Insert(p); err != nil {
			f.log.Error("inserting user", "email", p.Email(), "error", err)
		}
	}
	return nil
}

func (f *FileStore) readIndex() []string {
	lines, err := f.readLines(conversationList)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Error("reading conversation index", "error", err)
		}
		return nil
	}
	var ids []string
	seen := make(map[string]bool)
	for _, line := range lines {
		if line != "" && !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}
	return ids
}

func (f *FileStore) loadConversation(id string, directory *store.Directory, conversations *store.ConversationStore) {
	lines, err := f.readLines(id + fileExt)
	if err != nil {
		f.log.Error("reading conversation file", "file", id, "error", err)
		return
	}
	if len(lines) == 0 {
		return
	}

	header, err := DecodeConversationHeader(lines[0])
	if err != nil {
		f.log.Error("parsing conversation metadata", "file", id, "error", err)
		return
	}
	seller := directory.Lookup(header.SellerEmail)
	customer := directory.Lookup(header.CustomerEmail)
	if seller == nil || customer == nil || seller.Role() != domain.RoleSeller || customer.Role() != domain.RoleCustomer {
		// Endpoint deleted since the save; the file stays on disk untouched.
		f.log.Warn("skipping conversation with missing participant",
			"file", id, "seller", header.SellerEmail, "customer", header.CustomerEmail)
		return
	}

	c := conversations.GetOrCreate(seller, customer, header.Store, header.Disappearing)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		m, err := DecodeMessageLine(line, header)
		if err != nil {
			f.log.Error("parsing message line", "file", id, "error", err)
			continue
		}
		c.Append(m)
	}
}

func (f *FileStore) readLines(name string) ([]string, error) {
	file, err := os.Open(filepath.Join(f.dir, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
