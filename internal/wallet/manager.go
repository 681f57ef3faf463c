package wallet

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
)

// Wallet types.
const (
	TypeWatchOnly = "watch-only"
	TypeSigning   = "signing"
)

// Errors.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletExists   = errors.New("wallet already exists")
	ErrAddressExists  = errors.New("address already saved under another name")
	ErrInvalidName    = errors.New("invalid wallet name")
	ErrInvalidKey     = errors.New("invalid private key")
	ErrInvalidAddress = errors.New("invalid address")
	ErrNoKeystore     = errors.New("no keystore configured")
)

// Wallet is a named deployer account. Signing wallets keep their key in the
// keystore under KeyRef; watch-only wallets are address books for history.
type Wallet struct {
	Name      string    `json:"name"       validate:"walletname"`
	Address   string    `json:"address"    validate:"required,eth_addr"`
	Type      string    `json:"type"       validate:"oneof=signing watch-only"`
	KeyRef    string    `json:"key_ref,omitempty"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// Owner is the lowercase address records are keyed by.
func (w *Wallet) Owner() string { return records.NormalizeWallet(w.Address) }

// CanSign reports whether the wallet has a stored key.
func (w *Wallet) CanSign() bool { return w.Type == TypeSigning && w.KeyRef != "" }

var (
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)

	validate = func() *validator.Validate {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("walletname", func(fl validator.FieldLevel) bool {
			// A name must never parse as an address or it would shadow one.
			s := fl.Field().String()
			return namePattern.MatchString(s) && !common.IsHexAddress(s)
		})
		return v
	}()
)

func check(w *Wallet) error {
	err := validate.Struct(w)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	switch verrs[0].Field() {
	case "Name":
		return fmt.Errorf("%w %q: use up to 32 letters, digits, '.', '_' or '-'", ErrInvalidName, w.Name)
	case "Address":
		return fmt.Errorf("%w: %s", ErrInvalidAddress, w.Address)
	}
	return fmt.Errorf("invalid wallet: %w", err)
}

// Store persists the wallet list.
type Store interface {
	Load() ([]*Wallet, error)
	Save([]*Wallet) error
}

// Manager handles wallet CRUD. It is safe for concurrent use.
type Manager struct {
	store Store
	ks    KeystoreBackend
	now   func() time.Time

	mu      sync.Mutex
	wallets map[string]*Wallet
	loaded  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithInMemoryStore uses an in-memory store and keystore (useful for tests).
func WithInMemoryStore() Option {
	return func(m *Manager) {
		m.store = &memStore{}
		m.ks = NewInMemoryKeystore()
	}
}

// WithStore sets a custom store.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithKeystore sets where private keys are kept.
func WithKeystore(ks KeystoreBackend) Option {
	return func(m *Manager) { m.ks = ks }
}

// NewManager creates a new wallet manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		wallets: make(map[string]*Wallet),
		store:   &memStore{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Keystore returns the manager's key backend.
func (m *Manager) Keystore() KeystoreBackend {
	return m.ks
}

// Add registers a watch-only wallet. The address is stored checksummed.
func (m *Manager) Add(name string, w *Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w.Name = name
	if w.Type == "" {
		w.Type = TypeWatchOnly
	}
	if err := check(w); err != nil {
		return err
	}
	w.Address = common.HexToAddress(w.Address).Hex()
	if err := m.reserve(name, w.Address); err != nil {
		return err
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = m.now().UTC()
	}
	m.wallets[name] = w
	return m.persist()
}

// AddWithKey derives the address from a hex private key, stores the key in
// the keystore and saves a signing wallet.
func (m *Manager) AddWithKey(name, hexKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ks == nil {
		return ErrNoKeystore
	}
	priv, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	w := &Wallet{
		Name:    name,
		Address: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		Type:    TypeSigning,
	}
	if err := check(w); err != nil {
		return err
	}
	if err := m.reserve(name, w.Address); err != nil {
		return err
	}

	ref, err := m.ks.Store(name, hexKey)
	if err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	w.KeyRef = ref
	w.CreatedAt = m.now().UTC()
	m.wallets[name] = w
	return m.persist()
}

// reserve loads the list and fails when name or address is taken.
func (m *Manager) reserve(name, addr string) error {
	if err := m.load(); err != nil {
		return err
	}
	if _, ok := m.wallets[name]; ok {
		return fmt.Errorf("%w: %s", ErrWalletExists, name)
	}
	for _, w := range m.wallets {
		if strings.EqualFold(w.Address, addr) {
			return fmt.Errorf("%w %q", ErrAddressExists, w.Name)
		}
	}
	return nil
}

// Get returns a wallet by name.
func (m *Manager) Get(name string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(); err != nil {
		return nil, err
	}
	w, ok := m.wallets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	return w, nil
}

// ByAddress returns the wallet saved for addr, in any letter case.
func (m *Manager) ByAddress(addr string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(); err != nil {
		return nil, err
	}
	for _, w := range m.wallets {
		if strings.EqualFold(w.Address, addr) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, addr)
}

// Remove deletes a wallet by name, along with its stored key.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(); err != nil {
		return err
	}
	w, ok := m.wallets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	if w.KeyRef != "" && m.ks != nil {
		if err := m.ks.Delete(w.KeyRef); err != nil {
			return fmt.Errorf("deleting key: %w", err)
		}
	}
	delete(m.wallets, name)
	return m.persist()
}

// List returns all wallets sorted by name.
func (m *Manager) List() []*Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load() //nolint:errcheck
	return m.sorted()
}

// SetDefault marks a wallet as the default.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(); err != nil {
		return err
	}
	if _, ok := m.wallets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	for _, w := range m.wallets {
		w.IsDefault = w.Name == name
	}
	return m.persist()
}

// Default returns the default wallet, the only wallet when there is just
// one, or nil.
func (m *Manager) Default() *Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load() //nolint:errcheck
	for _, w := range m.wallets {
		if w.IsDefault {
			return w
		}
	}
	if len(m.wallets) == 1 {
		for _, w := range m.wallets {
			return w
		}
	}
	return nil
}

// Resolve returns the wallet for a name or a saved address, or the default
// one when ref is empty.
func (m *Manager) Resolve(ref string) (*Wallet, error) {
	if ref == "" {
		if w := m.Default(); w != nil {
			return w, nil
		}
		return nil, ErrWalletNotFound
	}
	if common.IsHexAddress(ref) {
		return m.ByAddress(ref)
	}
	return m.Get(ref)
}

// --- internal ---

func (m *Manager) load() error {
	if m.loaded {
		return nil
	}
	wallets, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("loading wallets: %w", err)
	}
	for _, w := range wallets {
		m.wallets[w.Name] = w
	}
	m.loaded = true
	return nil
}

func (m *Manager) sorted() []*Wallet {
	out := make([]*Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b *Wallet) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (m *Manager) persist() error {
	return m.store.Save(m.sorted())
}
