// Package session реализует хранилище сессионных токенов с ограниченным временем жизни.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/zeyadhelal16/bank-system/internal/model"
)

const tokenBytes = 24

// Store хранит активные сессии в памяти процесса. Создаётся при старте,
// записи истекают по TTL и отзываются при выходе из системы.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]entry

	now func() time.Time
}

type entry struct {
	actor     model.Actor
	expiresAt time.Time
}

// NewStore создаёт пустое хранилище сессий с указанным временем жизни токена.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]entry),
		now:      time.Now,
	}
}

// Create выпускает новый токен для принципала и регистрирует сессию.
func (s *Store) Create(actor model.Actor) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	s.sessions[token] = entry{
		actor:     actor,
		expiresAt: s.now().Add(s.ttl),
	}

	return token, nil
}

// Get возвращает принципала активной сессии. Истёкшая сессия удаляется.
func (s *Store) Get(token string) (model.Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return model.Actor{}, false
	}

	if s.now().After(e.expiresAt) {
		delete(s.sessions, token)
		return model.Actor{}, false
	}

	return e.actor, true
}

// Delete отзывает сессию. Отзыв несуществующего токена не является ошибкой.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *Store) purgeExpiredLocked() {
	now := s.now()
	for token, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, token)
		}
	}
}
