// Package session registers and uses delegated, scope-limited signing keys.
// A session is created by a primary signer and afterwards signs on the
// primary account's behalf until it expires or is revoked.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/auth"
	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/crypto"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transaction"
	"roochkit/go-sdk/pkg/typetag"
)

const DefaultMaxInactiveInterval = 1200 * time.Second

var (
	CreateSessionFunction = typetag.MustParseFunctionID("0x3::session_key::create_session_key_with_multi_scope_entry")
	RemoveSessionFunction = typetag.MustParseFunctionID("0x3::session_key::remove_session_key_entry")
)

var (
	ErrNotExecuted        = errors.New("session transaction not executed")
	ErrRegistrationFailed = errors.New("session registration failed")
	ErrRevoked            = errors.New("session revoked")
	ErrAppNameRequired    = errors.New("session app name is required")
)

// Submitter is the slice of a ledger client a session needs.
type Submitter interface {
	ChainID(ctx context.Context) (uint64, error)
	SequenceNumber(ctx context.Context, account address.LedgerAddress) (uint64, error)
	Execute(ctx context.Context, signed *transaction.Signed) (transaction.ExecutionResult, error)
}

type CreateArgs struct {
	AppName string
	AppURL  string
	// Scopes are "address::module::function" strings.
	Scopes              []string
	MaxInactiveInterval time.Duration
	// Keypair is the ephemeral key; a fresh Ed25519 key when nil.
	Keypair crypto.Keypair
	MaxGas  uint64
	Now     func() time.Time
}

// Session is a registered ephemeral key. It implements crypto.Signer and
// always signs with the RawTxHash method.
type Session struct {
	appName     string
	appURL      string
	scopes      []Scope
	keypair     crypto.Keypair
	account     address.LedgerAddress
	chainAddr   *address.ChainAddress
	createdAt   time.Time
	maxInactive time.Duration
	now         func() time.Time

	mu         sync.RWMutex
	lastActive time.Time
	revoked    bool
}

// Create registers a session for primary. It returns a usable Session only
// if the ledger reports the registration executed.
func Create(ctx context.Context, submitter Submitter, primary crypto.Signer, args CreateArgs, opts ...auth.Option) (*Session, error) {
	if args.AppName == "" {
		return nil, ErrAppNameRequired
	}
	scopes, err := ParseScopes(args.Scopes)
	if err != nil {
		return nil, err
	}
	scopes = NormalizeScopes(scopes)

	kp := args.Keypair
	if kp == nil {
		if kp, err = crypto.GenerateEd25519(); err != nil {
			return nil, err
		}
	}
	interval := args.MaxInactiveInterval
	if interval <= 0 {
		interval = DefaultMaxInactiveInterval
	}
	now := args.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		appName:     args.AppName,
		appURL:      args.AppURL,
		scopes:      scopes,
		keypair:     kp,
		account:     primary.LedgerAddress(),
		maxInactive: interval,
		now:         now,
	}
	if ca, err := primary.ChainAddress(); err == nil {
		s.chainAddr = ca
	}

	tx, err := s.registrationTransaction()
	if err != nil {
		return nil, err
	}
	if err := submit(ctx, submitter, tx, primary, args.MaxGas, opts...); err != nil {
		if errors.Is(err, ErrNotExecuted) {
			return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
		return nil, err
	}
	s.createdAt = now()
	s.lastActive = s.createdAt
	return s, nil
}

func (s *Session) registrationTransaction() (*transaction.Transaction, error) {
	authKey := s.AuthKey()
	addrs := make([][32]byte, 0, len(s.scopes))
	modules := make([]string, 0, len(s.scopes))
	functions := make([]string, 0, len(s.scopes))
	for _, sc := range s.scopes {
		addrs = append(addrs, sc.Address)
		modules = append(modules, sc.Module)
		functions = append(functions, sc.Function)
	}
	seconds := uint64(math.Ceil(s.maxInactive.Seconds()))

	appName, err := bcs.String(s.appName)
	if err != nil {
		return nil, err
	}
	appURL, err := bcs.String(s.appURL)
	if err != nil {
		return nil, err
	}
	key, err := bcs.Bytes(authKey[:])
	if err != nil {
		return nil, err
	}
	scopeAddrs, err := bcs.VecAddress(addrs)
	if err != nil {
		return nil, err
	}
	scopeModules, err := bcs.VecString(modules)
	if err != nil {
		return nil, err
	}
	scopeFunctions, err := bcs.VecString(functions)
	if err != nil {
		return nil, err
	}
	tx := transaction.New()
	err = tx.CallFunction(CreateSessionFunction, nil,
		appName, appURL, key, scopeAddrs, scopeModules, scopeFunctions, bcs.U64(seconds))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// submit fills sender, sequence number and chain id, signs with signer and
// requires an executed outcome.
func submit(ctx context.Context, submitter Submitter, tx *transaction.Transaction, signer crypto.Signer, maxGas uint64, opts ...auth.Option) error {
	sender := signer.LedgerAddress()
	chainID, err := submitter.ChainID(ctx)
	if err != nil {
		return err
	}
	seq, err := submitter.SequenceNumber(ctx, sender)
	if err != nil {
		return err
	}
	if err := tx.SetSender(sender); err != nil {
		return err
	}
	if err := tx.SetChainID(chainID); err != nil {
		return err
	}
	if err := tx.SetSequenceNumber(seq); err != nil {
		return err
	}
	if maxGas > 0 {
		if err := tx.SetMaxGas(maxGas); err != nil {
			return err
		}
	}
	signed, err := auth.SignTransaction(ctx, tx, signer, opts...)
	if err != nil {
		return err
	}
	result, err := submitter.Execute(ctx, signed)
	if err != nil {
		return err
	}
	if !result.Executed() {
		return fmt.Errorf("%w: %s", ErrNotExecuted, result.Status)
	}
	return nil
}

// Revoke removes the session key from the ledger, signed by the session
// itself under its self-revoke scope. The session is unusable afterwards.
func (s *Session) Revoke(ctx context.Context, submitter Submitter) error {
	authKey := s.AuthKey()
	arg, err := bcs.Bytes(authKey[:])
	if err != nil {
		return err
	}
	tx := transaction.New()
	if err := tx.CallFunction(RemoveSessionFunction, nil, arg); err != nil {
		return err
	}
	if err := submit(ctx, submitter, tx, s, 0); err != nil {
		return err
	}
	s.mu.Lock()
	s.revoked = true
	s.mu.Unlock()
	return nil
}

// Sign delegates to the ephemeral key. It fails without refreshing the
// activity time once the session has expired or been revoked.
func (s *Session) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	s.mu.RLock()
	revoked := s.revoked
	s.mu.RUnlock()
	if revoked {
		return nil, &sdkerr.SigningError{Scheme: s.Scheme().String(), Err: ErrRevoked}
	}
	if s.IsExpired() {
		return nil, &sdkerr.SigningError{Scheme: s.Scheme().String(), Err: sdkerr.ErrSessionExpired}
	}
	sig, err := s.keypair.Sign(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
	return sig, nil
}

// IsExpired compares the clock with last activity plus the inactivity
// interval. It has no side effects.
func (s *Session) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().After(s.lastActive.Add(s.maxInactive))
}

func (s *Session) PublicKey() crypto.PublicKey { return s.keypair.PublicKey() }

func (s *Session) Scheme() crypto.Scheme { return s.keypair.Scheme() }

// LedgerAddress is the primary account the session acts for.
func (s *Session) LedgerAddress() address.LedgerAddress { return s.account }

func (s *Session) ChainAddress() (*address.ChainAddress, error) {
	if s.chainAddr == nil {
		return nil, crypto.ErrNoChainAddress
	}
	return s.chainAddr, nil
}

func (s *Session) AuthMethod() auth.Method { return auth.RawTxHash }

// AuthKey is the ephemeral key's ledger address, registered on the ledger.
func (s *Session) AuthKey() address.LedgerAddress { return s.keypair.LedgerAddress() }

func (s *Session) AppName() string { return s.appName }

func (s *Session) AppURL() string { return s.appURL }

func (s *Session) Scopes() []Scope { return append([]Scope(nil), s.scopes...) }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) MaxInactiveInterval() time.Duration { return s.maxInactive }

func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s, app=%s, key=%s)", s.account.Hex(), s.appName, s.AuthKey().Hex())
}
