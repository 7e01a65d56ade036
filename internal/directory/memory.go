package directory

import (
	"context"
	"sync"

	"voice-orchestrator/internal/phone"

	"github.com/google/uuid"
)

// Memory is an in-memory directory and thread store.
// It is not intended for production use.
type Memory struct {
	mu       sync.Mutex
	contacts map[string]phone.Contact
	threads  map[string]string
	messages map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		contacts: map[string]phone.Contact{},
		threads:  map[string]string{},
		messages: map[string][]string{},
	}
}

// AddContact seeds a known caller.
func (m *Memory) AddContact(number, displayName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := phone.Contact{ID: uuid.NewString(), DisplayName: displayName}
	m.contacts[number] = c
	return c.ID
}

func (m *Memory) LookupByPhone(_ context.Context, number string) (*phone.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[number]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) CreateUnknown(_ context.Context, number string) (string, error) {
	if number == "" {
		return "", ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contacts[number]; ok {
		return c.ID, nil
	}
	c := phone.Contact{ID: uuid.NewString()}
	m.contacts[number] = c
	return c.ID, nil
}

func (m *Memory) FindOrCreate(_ context.Context, number string) (string, error) {
	if number == "" {
		return "", ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.threads[number]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.threads[number] = id
	return id, nil
}

func (m *Memory) AppendOutboundMessage(_ context.Context, threadID, body string) error {
	if threadID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[threadID] = append(m.messages[threadID], body)
	return nil
}

// Messages returns the outbound texts on the thread for number, for tests.
func (m *Memory) Messages(number string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages[m.threads[number]]...)
}

// Contacts returns the number of known contacts, for tests.
func (m *Memory) Contacts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contacts)
}
