// Package assets хранит редактируемые текстовые материалы бота:
// прайс-лист и правила начисления баллов.
package assets

import "sync"

// Store хранит тексты с потокобезопасным доступом. Экземпляр внедряется
// в автомат диалогов, глобального состояния нет.
type Store struct {
	mu    sync.RWMutex
	price string
	rules string
}

// NewStore создаёт хранилище с начальными текстами.
func NewStore(price, rules string) *Store {
	return &Store{price: price, rules: rules}
}

// Price возвращает текущий прайс-лист.
func (s *Store) Price() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

// Rules возвращает текущие правила.
func (s *Store) Rules() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// SetPrice заменяет прайс-лист.
func (s *Store) SetPrice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = text
}

// SetRules заменяет правила.
func (s *Store) SetRules(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = text
}
