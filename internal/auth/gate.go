// Package auth checks credentials against the JSON user file.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

// MinPasswordLength is the shortest accepted new password, in characters.
const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSamePassword       = errors.New("new password must differ from the current one")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrUserNotFound       = errors.New("user not found")
)

// User is one entry of the users file. JSON names are the on-disk format.
type User struct {
	PasswordHash       string     `json:"password_hash"`
	CreatedAt          Timestamp  `json:"created_at"`
	LastLogin          *Timestamp `json:"last_login"`
	LastPasswordChange *Timestamp `json:"last_password_change,omitempty"`
	IsActive           bool       `json:"is_active"`
	Role               string     `json:"role"`
}

// Info is a user without the password hash.
type Info struct {
	Username           string     `json:"username"`
	CreatedAt          Timestamp  `json:"created_at"`
	LastLogin          *Timestamp `json:"last_login"`
	LastPasswordChange *Timestamp `json:"last_password_change,omitempty"`
	IsActive           bool       `json:"is_active"`
	Role               string     `json:"role"`
}

// Gate owns the users file.
type Gate struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open loads the users file at path, creating it with one admin account when
// it does not exist. An empty seedPassword generates a random one, which is
// logged once.
func Open(path, seedUser, seedPassword string) (*Gate, error) {
	g := &Gate{path: path, now: func() time.Time { return time.Now().UTC() }}
	if _, err := os.Stat(path); err == nil {
		if _, err := g.load(); err != nil {
			return nil, err
		}
		return g, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat users file: %w", err)
	}

	generated := false
	if seedPassword == "" {
		var err error
		seedPassword, err = randomPassword()
		if err != nil {
			return nil, err
		}
		generated = true
	}
	hash, err := HashPassword(seedPassword)
	if err != nil {
		return nil, err
	}
	users := map[string]User{
		seedUser: {
			PasswordHash: hash,
			CreatedAt:    Timestamp{g.now()},
			IsActive:     true,
			Role:         "admin",
		},
	}
	if err := g.save(users); err != nil {
		return nil, err
	}
	if generated {
		log.Printf("created users file %s with account %q and generated password %q; change it after first login", path, seedUser, seedPassword)
	} else {
		log.Printf("created users file %s with account %q", path, seedUser)
	}
	return g, nil
}

// Verify reports whether the user exists, is active and the password
// matches. A legacy digest is upgraded to argon2id on success.
func (g *Gate) Verify(username, password string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	users, err := g.load()
	if err != nil {
		log.Printf("auth: %v", err)
		return false
	}
	u, ok := users[username]
	if !ok || !u.IsActive {
		// Unknown users pay the same argon2id cost as real ones.
		CheckPassword(dummyHash(), password)
		return false
	}
	match, legacy := CheckPassword(u.PasswordHash, password)
	if !match {
		return false
	}
	if legacy {
		if hash, err := HashPassword(password); err == nil {
			u.PasswordHash = hash
			users[username] = u
			if err := g.save(users); err != nil {
				log.Printf("auth: upgrade hash for %q: %v", username, err)
			}
		}
	}
	return true
}

// ChangePassword replaces the password after re-checking the current one.
func (g *Gate) ChangePassword(username, current, next string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	users, err := g.load()
	if err != nil {
		return err
	}
	u, ok := users[username]
	if !ok || !u.IsActive {
		return ErrInvalidCredentials
	}
	if match, _ := CheckPassword(u.PasswordHash, current); !match {
		return ErrInvalidCredentials
	}
	if next == current {
		return ErrSamePassword
	}
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	now := Timestamp{g.now()}
	u.PasswordHash = hash
	u.LastPasswordChange = &now
	users[username] = u
	return g.save(users)
}

// RecordLogin stamps last_login.
func (g *Gate) RecordLogin(username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	users, err := g.load()
	if err != nil {
		return err
	}
	u, ok := users[username]
	if !ok {
		return ErrUserNotFound
	}
	now := Timestamp{g.now()}
	u.LastLogin = &now
	users[username] = u
	return g.save(users)
}

// Info returns the user without its password hash.
func (g *Gate) Info(username string) (Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	users, err := g.load()
	if err != nil {
		return Info{}, err
	}
	u, ok := users[username]
	if !ok {
		return Info{}, ErrUserNotFound
	}
	return toInfo(username, u), nil
}

// Users lists all accounts sorted by name.
func (g *Gate) Users() ([]Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	users, err := g.load()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(users))
	for name, u := range users {
		out = append(out, toInfo(name, u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func toInfo(name string, u User) Info {
	return Info{
		Username:           name,
		CreatedAt:          u.CreatedAt,
		LastLogin:          u.LastLogin,
		LastPasswordChange: u.LastPasswordChange,
		IsActive:           u.IsActive,
		Role:               u.Role,
	}
}

func (g *Gate) load() (map[string]User, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	users := map[string]User{}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode users file %s: %w", g.path, err)
	}
	return users, nil
}

func (g *Gate) save(users map[string]User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}

func randomPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
