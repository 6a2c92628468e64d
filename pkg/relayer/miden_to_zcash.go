package relayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chainsafe/zcash-miden-bridge/internal/metrics"
	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
)

// MidenToZcashProcessor discovers consumable exit notes on the bridge's
// Miden account, pays the destination Zcash address, and settles the
// corresponding withdrawal row. Unlike the Zcash->Miden leg it maintains
// no scan cursor: Miden's note list is the authoritative queue, and each
// note carries its own claim/settle state in the withdrawals table.
type MidenToZcashProcessor struct {
	miden MidenClient
	zcash ZcashClient
	store BridgeStore
	logger *zap.Logger

	bridgeAccountID string
	fanOut          int64
}

// NewMidenToZcashProcessor builds the Miden->Zcash relayer loop.
func NewMidenToZcashProcessor(
	miden MidenClient,
	zcash ZcashClient,
	st BridgeStore,
	logger *zap.Logger,
	bridgeAccountID string,
	fanOut int,
) *MidenToZcashProcessor {
	if fanOut <= 0 {
		fanOut = 4
	}
	return &MidenToZcashProcessor{
		miden:           miden,
		zcash:           zcash,
		store:           st,
		logger:          logger,
		bridgeAccountID: bridgeAccountID,
		fanOut:          int64(fanOut),
	}
}

// Run ticks the processor on interval until ctx is canceled or stopCh is
// closed.
func (p *MidenToZcashProcessor) Run(ctx context.Context, interval time.Duration, stopCh <-chan struct{}) {
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
				p.logger.Error("miden->zcash tick failed", zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("miden_to_zcash", bridgeerr.Classify(err).String()).Inc()
			}
		}
	}
}

// Tick runs one iteration of the Miden->Zcash state machine: sync the
// local rollup view, list consumable exit notes, and process each up to
// a bounded fan-out.
func (p *MidenToZcashProcessor) Tick(ctx context.Context) error {
	if err := p.miden.Sync(ctx); err != nil {
		return fmt.Errorf("sync miden: %w", err)
	}

	noteCh, errCh := p.miden.ListConsumableExitNotes(ctx, p.bridgeAccountID)

	var notes []ExitNote
	for note := range noteCh {
		notes = append(notes, note)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("list consumable exit notes: %w", err)
	}
	if len(notes) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(p.fanOut)
	var wg sync.WaitGroup
	errs := make([]error, len(notes))
	for i, note := range notes {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, note ExitNote) {
			defer wg.Done()
			defer sem.Release(1)
			errs[i] = p.processExitNote(ctx, note)
		}(i, note)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			p.logger.Error("exit note processing failed",
				zap.String("note_id", notes[i].NoteID), zap.Error(err))
		}
	}
	return nil
}

// processExitNote implements the per-note steps of §4.5: claim, consume,
// pay out, settle. Every exit path that leaves the note claimed but not
// settled is resumable on the next tick because claim state, the consumed
// note id, and the sent txid are all persisted before the corresponding
// chain call's result is acted on further.
func (p *MidenToZcashProcessor) processExitNote(ctx context.Context, note ExitNote) error {
	w, err := p.store.ClaimWithdrawal(note.NoteID, note.ZcashAddress, note.AmountBase)
	if err != nil {
		return fmt.Errorf("claim withdrawal: %w", err)
	}
	if w == nil {
		// Already settled by a previous tick.
		return nil
	}

	// cancellation-masked scope: once a consume or send has been
	// submitted, ctx cancellation must not abandon tracking its result.
	submitCtx := context.WithoutCancel(ctx)

	switch w.Status {
	case store.WithdrawalStatusClaimed:
		// Not yet consumed: safe to call consume_note. A failure here
		// releases the claim so a later note-list pass retries from
		// Open; it has not touched the chain, so nothing to compensate.
		if _, err := p.miden.ConsumeNote(submitCtx, p.bridgeAccountID, note.NoteID); err != nil {
			if releaseErr := p.store.ReleaseWithdrawal(w.ID); releaseErr != nil {
				return fmt.Errorf("consume note: %w (release failed: %v)", err, releaseErr)
			}
			return fmt.Errorf("consume note: %w", err)
		}
		if err := p.store.MarkConsumed(w.ID); err != nil {
			return fmt.Errorf("mark consumed: %w", err)
		}
		fallthrough

	case store.WithdrawalStatusConsumed:
		// The note is already consumed; retrying must never re-consume
		// it. Only send_shielded is attempted, and a failure here leaves
		// status Consumed so the next tick retries only this step. The
		// note's own address/amount are authoritative, not the claimed
		// row's — the row may have been back-created or resumed across a
		// crash, but the note's payload is what was actually locked on Miden.
		targetTxID, err := p.zcash.SendShielded(submitCtx, note.ZcashAddress, note.AmountBase, nil)
		if err != nil {
			return fmt.Errorf("send shielded: %w", err)
		}
		if err := p.store.MarkSent(w.ID, targetTxID); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		w.TargetTxID = &targetTxID
		fallthrough

	case store.WithdrawalStatusPaid:
		// send_shielded has already succeeded and target_txid is
		// persisted (either just now or from a prior attempt that
		// crashed before settlement); finalize without resending.
		if err := p.store.MarkPaid(w.ID, *w.TargetTxID); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		metrics.TransfersTotal.WithLabelValues("miden_to_zcash", "paid").Inc()
		metrics.TransferAmount.WithLabelValues("miden_to_zcash").Observe(float64(note.AmountBase))
	}

	return nil
}
