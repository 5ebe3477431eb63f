// Package users keeps the registered users and binds logged-in users to
// their coordinator sessions.
package users

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUserExists is returned when registering an email that is taken.
var ErrUserExists = errors.New("user already exists")

// User is a registered account. Password holds a bcrypt hash, or the plain
// password for hand-written entries.
type User struct {
	Username string `yaml:"username" json:"username"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
}

// Store persists users.
type Store interface {
	List() ([]User, error)
	FindByEmail(email string) (User, bool, error)
	Add(u User) error
}

type userFile struct {
	Users []User `yaml:"users"`
}

// FileStore keeps users in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens the YAML file at path, creating an empty one when it
// does not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("users file path is required")
	}
	s := &FileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(userFile{Users: []User{}}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat users file: %w", err)
	}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// List returns every user in file order.
func (s *FileStore) List() ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	return f.Users, nil
}

// FindByEmail looks a user up, ignoring case.
func (s *FileStore) FindByEmail(email string) (User, bool, error) {
	users, err := s.List()
	if err != nil {
		return User{}, false, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

// Add appends u and rewrites the file.
func (s *FileStore) Add(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	for _, existing := range f.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
	}
	f.Users = append(f.Users, u)
	return s.write(f)
}

func (s *FileStore) read() (userFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return userFile{}, fmt.Errorf("read users file: %w", err)
	}
	var f userFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return userFile{}, fmt.Errorf("parse users file %s: %w", s.path, err)
	}
	return f, nil
}

// write replaces the file through a temp file in the same directory.
func (s *FileStore) write(f userFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp users file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
