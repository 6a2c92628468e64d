// Package facade implements the HTTP surface consumed by the bridge UI
// (task H in spec.md §5): deposit-hash derivation, balance queries,
// withdrawal creation, and the server-custodied note-consume/account
// fallbacks. It reads and writes pkg/store directly; it never talks to
// the Zcash client, and uses the Miden client only for balance reads and
// the server-custodied consume/account-creation calls.
package facade

import (
	"context"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
	"github.com/chainsafe/zcash-miden-bridge/pkg/config"
	"github.com/chainsafe/zcash-miden-bridge/pkg/derivation"
	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// MidenReader is the subset of the Miden client the facade needs: balance
// read-through and the server-custodied consume/account-creation
// fallbacks. Defined locally so the facade can be tested against a fake.
type MidenReader interface {
	GetVaultBalance(ctx context.Context, accountID, faucetID string) (int64, error)
	ConsumeNote(ctx context.Context, bridgeAccountID, noteID string) (string, error)
	CreateAccount(ctx context.Context) ([]byte, error)
}

// Store is the subset of pkg/store.Store the facade needs.
type Store interface {
	UpsertIntent(accountID string, recipientHash [32]byte) (*store.DepositIntent, error)
	GetIntentByRecipientHash(recipientHash [32]byte) (*store.DepositIntent, error)
	CreateWithdrawal(originAccountID, zcashAddress string, amountBase int64) (*store.Withdrawal, error)
	ListIntents(limit int) ([]*store.DepositIntent, error)
	ListWithdrawals(limit int) ([]*store.Withdrawal, error)
}

// Service implements the six facade operations of spec.md §6.
type Service struct {
	cfg    *config.Config
	store  Store
	miden  MidenReader
	logger *zap.Logger
	hash   derivation.HashFunc
}

// NewService constructs a facade Service. hashFunc may be nil to use
// derivation.DefaultHashFunc.
func NewService(cfg *config.Config, st Store, midenClient MidenReader, logger *zap.Logger, hashFunc derivation.HashFunc) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, store: st, miden: midenClient, logger: logger, hash: hashFunc}
}

// DepositHash derives recipient_hash from accountIDStr/secretStr and
// records the corresponding DepositIntent (an intent already on file for
// the same hash is left unchanged), per spec.md §3
// ("Created when the UI requests a hash").
func (s *Service) DepositHash(_ context.Context, accountIDStr, secretStr string) ([32]byte, error) {
	recipientHash, err := derivation.Derive(s.hash, accountIDStr, secretStr)
	if err != nil {
		return [32]byte{}, err
	}
	if _, err := s.store.UpsertIntent(accountIDStr, recipientHash); err != nil {
		return [32]byte{}, bridgeerr.New(bridgeerr.KindStoreCorrupt, "persist deposit intent", err)
	}
	return recipientHash, nil
}

// AccountBalance returns the wrapped-asset balance for a user's account.
func (s *Service) AccountBalance(ctx context.Context, accountIDStr string) (int64, error) {
	accountID, err := derivation.DecodeAccountID(accountIDStr)
	if err != nil {
		return 0, err
	}
	return s.miden.GetVaultBalance(ctx, hex.EncodeToString(accountID), s.cfg.Miden.FaucetID)
}

// PoolBalance returns the bridge's wrapped reserve (PoolBalance, spec.md
// §3: "derived; not stored").
func (s *Service) PoolBalance(ctx context.Context) (int64, error) {
	return s.miden.GetVaultBalance(ctx, s.cfg.Miden.BridgeAccountID, s.cfg.Miden.FaucetID)
}

// CreateWithdrawal records a withdrawal request; the Miden->Zcash relayer
// (task M) drives it to completion once the matching exit note appears
// on-chain.
func (s *Service) CreateWithdrawal(_ context.Context, accountIDStr, zcashAddress string, amountBase int64) (string, error) {
	if _, err := derivation.DecodeAccountID(accountIDStr); err != nil {
		return "", err
	}
	if amountBase <= 0 {
		return "", bridgeerr.New(bridgeerr.KindUnexpectedAmount, "amount must be positive", nil)
	}
	w, err := s.store.CreateWithdrawal(accountIDStr, zcashAddress, amountBase)
	if err != nil {
		return "", bridgeerr.New(bridgeerr.KindStoreCorrupt, "persist withdrawal", err)
	}
	return w.ID.String(), nil
}

// ConsumeNote is the claim-mode fallback: given the user's account_id and
// secret, it re-derives recipient_hash, looks up the matching mint note,
// and performs the P2IDH consumption on the user's behalf (server
// custody). amount and faucetID are used only to validate the request
// shape the UI sends; the note id on file is authoritative.
func (s *Service) ConsumeNote(ctx context.Context, accountIDStr, secretStr, faucetID string, amount int64) (txID, noteID string, err error) {
	if faucetID == "" {
		return "", "", bridgeerr.New(bridgeerr.KindConfigMissing, "faucet_id is required", nil)
	}
	if amount <= 0 {
		return "", "", bridgeerr.New(bridgeerr.KindUnexpectedAmount, "amount must be positive", nil)
	}

	recipientHash, err := derivation.Derive(s.hash, accountIDStr, secretStr)
	if err != nil {
		return "", "", err
	}

	intent, err := s.store.GetIntentByRecipientHash(recipientHash)
	if err != nil {
		return "", "", bridgeerr.New(bridgeerr.KindStoreCorrupt, "look up deposit intent", err)
	}
	if intent == nil || intent.MintNoteID == nil {
		return "", "", bridgeerr.New(bridgeerr.KindDerivationMismatch, "no mint note found for this account_id/secret", nil)
	}

	txid, err := s.miden.ConsumeNote(ctx, accountIDStr, *intent.MintNoteID)
	if err != nil {
		return "", "", err
	}
	return txid, *intent.MintNoteID, nil
}

// CreateAccount allocates a fresh, empty Miden account for server-custodied
// onboarding (spec.md §6: "optional; useful for ... onboarding").
func (s *Service) CreateAccount(ctx context.Context) (accountIDBech32, accountIDHex string, err error) {
	raw, err := s.miden.CreateAccount(ctx)
	if err != nil {
		return "", "", err
	}
	bech, err := derivation.EncodeAccountID(raw)
	if err != nil {
		return "", "", bridgeerr.New(bridgeerr.KindDerivationMismatch, "encode new account id", err)
	}
	return bech, hex.EncodeToString(raw), nil
}
