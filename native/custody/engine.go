package custody

import (
	"errors"

	"nftylend/core/events"
	"nftylend/crypto"
)

var (
	ErrInvalidCollection = errors.New("custody: collection identifier required")
	ErrZeroAddress       = errors.New("custody: zero address")
	ErrTokenNotFound     = errors.New("custody: token not found")
	ErrNotTokenOwner     = errors.New("custody: caller does not own token")
	ErrNotApproved       = errors.New("custody: transfer not approved")

	errNilState = errors.New("custody: state not configured")
)

// engineState is the slice of ledger state the custody engine needs:
// per-token ownership and owner-scoped operator approvals.
type engineState interface {
	CustodyOwner(collection string, nftID uint64) (crypto.Address, bool, error)
	CustodyPutOwner(collection string, nftID uint64, owner crypto.Address) error
	CustodyOperatorApproved(owner, operator crypto.Address) (bool, error)
	CustodyPutOperatorApproval(owner, operator crypto.Address, approved bool) error
}

// Engine tracks NFT ownership and takes collateral into vault custody for the
// lifetime of a loan. Holds require the token owner to have approved the
// vault operator beforehand, mirroring ERC-721 operator approvals.
type Engine struct {
	vault   crypto.Address
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a custody engine holding collateral under the given vault
// address.
func NewEngine(vault crypto.Address) *Engine {
	return &Engine{vault: vault, emitter: events.NoopEmitter{}}
}

// SetState wires the persistence backend into the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// VaultAddress returns the address holding collateral while loans are active.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// OwnerOf returns the current owner of the token.
func (e *Engine) OwnerOf(collection string, nftID uint64) (crypto.Address, error) {
	if err := e.ready(); err != nil {
		return crypto.Address{}, err
	}
	if collection == "" {
		return crypto.Address{}, ErrInvalidCollection
	}
	owner, ok, err := e.state.CustodyOwner(collection, nftID)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

// Register records the initial owner of a token. It backs the faucet used to
// seed integration environments with collateral.
func (e *Engine) Register(collection string, nftID uint64, owner crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if collection == "" {
		return ErrInvalidCollection
	}
	if owner.IsZero() {
		return ErrZeroAddress
	}
	if err := e.state.CustodyPutOwner(collection, nftID, owner); err != nil {
		return err
	}
	e.emit(newRegisteredEvent(collection, nftID, owner))
	return nil
}

// SetApproval grants or revokes the operator's right to move any of owner's
// tokens into custody.
func (e *Engine) SetApproval(owner, operator crypto.Address, approved bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if owner.IsZero() || operator.IsZero() {
		return ErrZeroAddress
	}
	if err := e.state.CustodyPutOperatorApproval(owner, operator, approved); err != nil {
		return err
	}
	e.emit(newApprovalEvent(owner, operator, approved))
	return nil
}

// Hold transfers the token from its owner into vault custody. It fails with
// ErrNotTokenOwner when from does not own the token and ErrNotApproved when
// the owner has not approved the vault operator.
func (e *Engine) Hold(collection string, nftID uint64, from crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	owner, err := e.OwnerOf(collection, nftID)
	if err != nil {
		return err
	}
	if !owner.Equal(from) {
		return ErrNotTokenOwner
	}
	approved, err := e.state.CustodyOperatorApproved(owner, e.vault)
	if err != nil {
		return err
	}
	if !approved {
		return ErrNotApproved
	}
	if err := e.state.CustodyPutOwner(collection, nftID, e.vault); err != nil {
		return err
	}
	e.emit(newHeldEvent(collection, nftID, from))
	return nil
}

// Release transfers a token out of vault custody to the recipient. Only
// vault-held tokens can be released.
func (e *Engine) Release(collection string, nftID uint64, to crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	owner, err := e.OwnerOf(collection, nftID)
	if err != nil {
		return err
	}
	if !owner.Equal(e.vault) {
		return ErrNotTokenOwner
	}
	if err := e.state.CustodyPutOwner(collection, nftID, to); err != nil {
		return err
	}
	e.emit(newReleasedEvent(collection, nftID, to))
	return nil
}

func (e *Engine) emit(event custodyEvent) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}
