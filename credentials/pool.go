// Package credentials holds the rotating pool of bearer tokens used to
// authenticate generation requests.
package credentials

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrDuplicateToken is returned by Add when the secret is already pooled.
	ErrDuplicateToken = errors.New("credentials: token already present")

	// ErrEmptySecret is returned by Add for a blank secret.
	ErrEmptySecret = errors.New("credentials: token secret cannot be empty")

	// ErrOutOfRange is returned by Remove for an invalid index.
	ErrOutOfRange = errors.New("credentials: index out of range")
)

// Token is an immutable credential. Secret identifies it; Name is a display
// label only and need not be unique.
type Token struct {
	Name   string
	Secret string
}

// NewToken trims both fields. An empty name is replaced by a masked form of
// the secret so logs still have something to show.
func NewToken(name, secret string) Token {
	name = strings.TrimSpace(name)
	secret = strings.TrimSpace(secret)
	if name == "" {
		name = MaskSecret(secret)
	}
	return Token{Name: name, Secret: secret}
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// ChangeFunc receives the pool contents after a mutation.
type ChangeFunc func(tokens []Token)

// Pool hands out tokens in round-robin order.
//
// Thread-Safety:
//   - Next is an atomic read-and-advance of the cursor; the caller does its
//     network call outside the lock, so generation requests never serialize
//   - Add and Remove notify subscribers while still holding the lock, so no
//     Next call can observe a token whose derived handles were dropped
type Pool struct {
	mu          sync.Mutex
	tokens      []Token
	cursor      int
	subscribers []ChangeFunc
}

// NewPool builds a pool from tokens, skipping blanks and duplicate secrets.
func NewPool(tokens []Token) *Pool {
	p := &Pool{}
	for _, t := range tokens {
		if t.Secret == "" || p.indexOf(t.Secret) >= 0 {
			continue
		}
		p.tokens = append(p.tokens, t)
	}
	return p
}

// Next returns the token at the cursor and advances it. ok is false only
// when the pool is empty.
func (p *Pool) Next() (token Token, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tokens) == 0 {
		return Token{}, false
	}
	if p.cursor >= len(p.tokens) {
		p.cursor = 0
	}
	token = p.tokens[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.tokens)
	return token, true
}

// Add appends a token at the end of the rotation.
func (p *Pool) Add(token Token) error {
	if token.Secret == "" {
		return ErrEmptySecret
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexOf(token.Secret) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, token.Name)
	}
	p.tokens = append(p.tokens, token)
	p.notifyLocked()
	return nil
}

// Remove deletes the token at index and returns it.
func (p *Pool) Remove(index int) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.tokens) {
		return Token{}, fmt.Errorf("%w: %d (pool has %d tokens)", ErrOutOfRange, index, len(p.tokens))
	}

	removed := p.tokens[index]
	p.tokens = append(p.tokens[:index:index], p.tokens[index+1:]...)

	// Keep the cursor pointing at the token that would have come next.
	if index < p.cursor {
		p.cursor--
	}
	if len(p.tokens) == 0 || p.cursor >= len(p.tokens) {
		p.cursor = 0
	}

	p.notifyLocked()
	return removed, nil
}

// Tokens returns a copy of the pool in rotation order.
func (p *Pool) Tokens() []Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Len returns the number of pooled tokens.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

// OnChange registers fn to run after every Add and Remove. fn runs with the
// pool locked and must not call back into the pool.
func (p *Pool) OnChange(fn ChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

func (p *Pool) notifyLocked() {
	if len(p.subscribers) == 0 {
		return
	}
	snapshot := p.snapshotLocked()
	for _, fn := range p.subscribers {
		fn(snapshot)
	}
}

func (p *Pool) snapshotLocked() []Token {
	out := make([]Token, len(p.tokens))
	copy(out, p.tokens)
	return out
}

func (p *Pool) indexOf(secret string) int {
	for i, t := range p.tokens {
		if t.Secret == secret {
			return i
		}
	}
	return -1
}
