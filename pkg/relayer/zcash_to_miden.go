package relayer

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chainsafe/zcash-miden-bridge/internal/metrics"
	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// ZcashToMidenProcessor discovers confirmed shielded deposits, mints
// hash-locked notes on Miden for well-formed recipient-hash memos, and
// advances the Zcash scan cursor.
type ZcashToMidenProcessor struct {
	zcash  ZcashClient
	miden  MidenClient
	store  BridgeStore
	logger *zap.Logger

	faucet          string
	maxMintAttempts int
	backoffBase     time.Duration
	fanOut          int64
}

// NewZcashToMidenProcessor builds the Zcash->Miden relayer loop.
func NewZcashToMidenProcessor(
	zcash ZcashClient,
	miden MidenClient,
	st BridgeStore,
	logger *zap.Logger,
	faucet string,
	maxMintAttempts int,
	backoffBase time.Duration,
	fanOut int,
) *ZcashToMidenProcessor {
	if fanOut <= 0 {
		fanOut = 4
	}
	if maxMintAttempts <= 0 {
		maxMintAttempts = 8
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &ZcashToMidenProcessor{
		zcash:           zcash,
		miden:           miden,
		store:           st,
		logger:          logger,
		faucet:          faucet,
		maxMintAttempts: maxMintAttempts,
		backoffBase:     backoffBase,
		fanOut:          int64(fanOut),
	}
}

// Run ticks the processor on interval until ctx is canceled or stopCh is
// closed. It blocks for the duration of the loop; callers run it in a
// goroutine and wait on a WaitGroup.
func (p *ZcashToMidenProcessor) Run(ctx context.Context, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("zcash->miden tick failed", zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("zcash_to_miden", bridgeerr.Classify(err).String()).Inc()
			}
		}
	}
}

type zcashTickResult struct {
	tx         ConfirmedTx
	quarantine bool
	err        error
}

// Tick runs one iteration of the Zcash->Miden state machine: read the
// cursor, scan from it, process each confirmed deposit up to a bounded
// fan-out, then persist the new cursor.
func (p *ZcashToMidenProcessor) Tick(ctx context.Context) error {
	cursor := store.ScanCursor{}
	if c, err := p.store.GetCursor(store.ChainZcash); err != nil {
		return fmt.Errorf("load cursor: %w", err)
	} else if c != nil {
		cursor = *c
	}

	txCh, errCh := p.zcash.ScanFrom(ctx, cursor)

	var txs []ConfirmedTx
	for tx := range txCh {
		txs = append(txs, tx)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("scan from cursor: %w", err)
	}
	if len(txs) == 0 {
		return nil
	}

	results := make([]zcashTickResult, len(txs))
	sem := semaphore.NewWeighted(p.fanOut)
	var wg sync.WaitGroup
	for i, tx := range txs {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = zcashTickResult{tx: tx, err: err}
			continue
		}
		wg.Add(1)
		go func(i int, tx ConfirmedTx) {
			defer wg.Done()
			defer sem.Release(1)
			quarantined, err := p.processTx(ctx, tx)
			results[i] = zcashTickResult{tx: tx, quarantine: quarantined, err: err}
		}(i, tx)
	}
	wg.Wait()

	return p.advanceCursor(results)
}

// advanceCursor persists the new cursor as the position just past the
// longest successfully-or-quarantined prefix of the tick's transactions;
// it never advances past a tx that failed with a retryable error.
func (p *ZcashToMidenProcessor) advanceCursor(results []zcashTickResult) error {
	var last *ConfirmedTx
	for _, r := range results {
		if r.err != nil && !r.quarantine {
			break
		}
		tx := r.tx
		last = &tx
	}
	if last == nil {
		return nil
	}
	if err := p.store.AdvanceCursor(store.ChainZcash, last.BlockHeight, last.TxPos+1); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// processTx implements the per-tx steps of §4.4: parse memo, claim,
// aggregate amount, mint, mark minted. It returns quarantine=true when
// the tx was given up on after MAX_MINT_ATTEMPTS, which still permits the
// cursor to move past it.
func (p *ZcashToMidenProcessor) processTx(ctx context.Context, tx ConfirmedTx) (quarantine bool, err error) {
	recipientHash, ok := parseDepositMemo(tx.Memos)
	if !ok {
		if err := p.store.MarkUnclaimable(tx.TxID); err != nil {
			return false, fmt.Errorf("mark unclaimable: %w", err)
		}
		p.logger.Warn("deposit memo unclaimable", zap.String("txid", tx.TxID))
		return true, nil
	}

	amountBase := int64(0)
	for _, o := range tx.Outputs {
		amountBase += o.AmountBase
	}

	intent, err := p.store.ClaimDeposit(tx.TxID, recipientHash, amountBase)
	if err != nil {
		return false, fmt.Errorf("claim deposit: %w", err)
	}
	if intent == nil {
		// The idempotency key was already registered by a previous tick,
		// which commits before minting is attempted. That previous
		// attempt may have minted successfully, may have been
		// quarantined, or may simply have failed and be owed a retry;
		// look the intent up directly by recipient hash to tell these
		// apart instead of treating "already claimed" as "already done".
		existing, err := p.store.GetIntentByRecipientHash(recipientHash)
		if err != nil {
			return false, fmt.Errorf("lookup claimed intent: %w", err)
		}
		if existing == nil || existing.Status == store.IntentStatusMinted || existing.Status == store.IntentStatusQuarantined {
			return true, nil
		}
		intent = existing
	}

	if intent.MintNoteID != nil {
		// Mint already happened before a crash; only the mark was lost.
		if err := p.store.MarkMinted(intent.ID, *intent.MintNoteID, amountBase); err != nil {
			return false, fmt.Errorf("mark minted (replay): %w", err)
		}
		return false, nil
	}

	// cancellation-masked scope: do not let ctx cancellation interrupt a
	// submission that has already left the wallet/rollup boundary.
	submitCtx := context.WithoutCancel(ctx)

	noteID, mintErr := p.mintWithBackoff(submitCtx, recipientHash, amountBase)
	if mintErr != nil {
		attempts, incErr := p.store.IncrementMintAttempts(intent.ID)
		if incErr != nil {
			return false, fmt.Errorf("increment mint attempts: %w", incErr)
		}
		if attempts >= p.maxMintAttempts {
			if err := p.store.MarkQuarantined(intent.ID); err != nil {
				return false, fmt.Errorf("mark quarantined: %w", err)
			}
			metrics.MintAttempts.WithLabelValues().Observe(float64(attempts))
			p.logger.Error("deposit quarantined after max mint attempts",
				zap.String("txid", tx.TxID), zap.Int("attempts", attempts), zap.Error(mintErr))
			return true, nil
		}
		return false, fmt.Errorf("mint p2idh: %w", mintErr)
	}

	if err := p.store.MarkMinted(intent.ID, noteID, amountBase); err != nil {
		return false, fmt.Errorf("mark minted: %w", err)
	}
	metrics.MintAttempts.WithLabelValues().Observe(float64(intent.MintAttempts + 1))
	metrics.TransfersTotal.WithLabelValues("zcash_to_miden", "minted").Inc()
	metrics.TransferAmount.WithLabelValues("zcash_to_miden").Observe(float64(amountBase))
	return false, nil
}

// mintWithBackoff retries a single mint attempt with exponential backoff
// bounded by maxMintAttempts; the tick-level retry loop (next tick)
// provides the outer retry, so this only smooths transient RPC failures
// within one tick.
func (p *ZcashToMidenProcessor) mintWithBackoff(ctx context.Context, recipientHash [32]byte, amountBase int64) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.backoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = p.backoffBase * time.Duration(p.maxMintAttempts)

	var noteID string
	op := func() error {
		id, err := p.miden.MintP2IDH(ctx, p.faucet, recipientHash, amountBase)
		if err != nil {
			if bridgeerr.Classify(err) != bridgeerr.CategoryTransient {
				return backoff.Permanent(err)
			}
			return err
		}
		noteID = id
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return noteID, nil
}

// parseDepositMemo parses the deposit memo convention of §6: the UTF-8
// encoding of a 64-character lowercase hex string, optionally 0x-prefixed,
// representing the 32-byte recipient_hash. Multiple memos on one tx are
// attributed to the first output carrying a well-formed memo.
func parseDepositMemo(memos [][]byte) ([32]byte, bool) {
	var hash [32]byte
	for _, memo := range memos {
		s := strings.TrimPrefix(strings.TrimSpace(string(memo)), "0x")
		if len(s) != 64 {
			continue
		}
		decoded, err := hex.DecodeString(strings.ToLower(s))
		if err != nil || len(decoded) != 32 {
			continue
		}
		copy(hash[:], decoded)
		return hash, true
	}
	return hash, false
}
