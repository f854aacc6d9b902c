package fakeidp

import (
	"errors"
	"sync"
	"time"
)

// Transaction is one authorize request, from /authorize until the code is
// redeemed at the token endpoint.
type Transaction struct {
	State               string // provider side state shown on the login page
	ClientID            string
	RedirectURI         string
	ClientState         string // state the client sent, echoed on the callback
	Nonce               string
	Scope               string
	Audience            string
	CodeChallenge       string
	CodeChallengeMethod string
	UserName            string
	CreatedAt           time.Time
}

var errNotFound = errors.New("not found")

// store is a thread-safe in-memory store of transactions keyed by state,
// login tickets and authorization codes. Tickets and codes are single use.
type store struct {
	mu           sync.RWMutex
	transactions map[string]*Transaction
	tickets      map[string]string // ticket -> state
	codes        map[string]string // code -> state
}

func newStore() *store {
	return &store{
		transactions: make(map[string]*Transaction),
		tickets:      make(map[string]string),
		codes:        make(map[string]string),
	}
}

// Upsert stores or updates a transaction
func (s *store) Upsert(txn *Transaction) error {
	if txn == nil || txn.State == "" {
		return errors.New("state cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external modifications
	c := *txn
	s.transactions[txn.State] = &c
	return nil
}

// Get retrieves a transaction by state
func (s *store) Get(state string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, exists := s.transactions[state]
	if !exists {
		return nil, errNotFound
	}
	c := *txn
	return &c, nil
}

func (s *store) AddTicket(ticket, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket] = state
}

// RedeemTicket returns the transaction a login ticket was issued for and
// removes the ticket
func (s *store) RedeemTicket(ticket string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.tickets[ticket]
	if !exists {
		return nil, errNotFound
	}
	delete(s.tickets, ticket)

	txn, exists := s.transactions[state]
	if !exists {
		return nil, errNotFound
	}
	c := *txn
	return &c, nil
}

func (s *store) AddCode(code, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = state
}

// RedeemCode returns the transaction a code was issued for. The code and
// its transaction are removed.
func (s *store) RedeemCode(code string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.codes[code]
	if !exists {
		return nil, errNotFound
	}
	delete(s.codes, code)

	txn, exists := s.transactions[state]
	if !exists {
		return nil, errNotFound
	}
	delete(s.transactions, state)
	return txn, nil
}
