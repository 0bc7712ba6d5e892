package tally

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cmwaters/ballot/ledger"
)

func (c *Coordinator) retryBackOff(retries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.params.RetryInitialInterval
	b.MaxInterval = c.params.RetryMaxInterval
	// bounded by the retry count instead
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, retries)
}

// applied reports whether the ledger already records the tally step of kind.
func applied(kind ledger.TxKind, status ledger.VotePlanStatus) bool {
	switch kind {
	case ledger.EncryptedTally:
		return status.Tally >= ledger.Encrypted
	case ledger.PublicTally, ledger.DecryptedTally:
		return status.Tally == ledger.Tallied
	default:
		return false
	}
}

// submitWithRetry signs and submits the transaction for kind. Before every
// attempt the vote plan status is read: if the step is already applied the
// status is returned instead of submitting again. Rejected submissions are
// retried with exponential backoff up to SubmitRetries times.
func (r *run) submitWithRetry(ctx context.Context, kind ledger.TxKind) (ledger.FragmentID, *ledger.VotePlanStatus, error) {
	var (
		id         ledger.FragmentID
		done       *ledger.VotePlanStatus
		lastReject *ledger.SubmissionRejected
		// staleBytes are the last bytes refused for their counter
		staleBytes []byte
		attempt    int
	)
	draft := r.machine.Draft(kind)

	op := func() error {
		attempt++
		status, err := r.ledger.VotePlanStatus(ctx, r.plan)
		if err != nil {
			return err
		}
		if applied(kind, status) {
			done = &status
			return nil
		}

		err = r.wallet.Spend(ctx, func(counter uint32) error {
			bz, err := ledger.Seal(ctx, r.wallet, counter, draft)
			if err != nil {
				return backoff.Permanent(err)
			}
			if staleBytes != nil && bytes.Equal(bz, staleBytes) {
				return backoff.Permanent(protocolError(r.plan, fmt.Errorf("%w: counter %d", ErrResendRejected, counter)))
			}
			id, err = r.ledger.Submit(ctx, bz)
			var rej *ledger.SubmissionRejected
			if errors.As(err, &rej) {
				lastReject = rej
				if rej.Reason == ledger.StaleCounter {
					staleBytes = bz
				}
				r.logger.Info().
					Str("kind", kind.String()).
					Int("attempt", attempt).
					Uint32("counter", counter).
					Str("reason", rej.Reason.String()).
					Msg("tally submission rejected")
			}
			return err
		})
		if isWalletError(err) {
			return backoff.Permanent(protocolError(r.plan, err))
		}
		return err
	}

	b := backoff.WithContext(r.retryBackOff(r.params.SubmitRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if lastReject != nil && errors.Is(err, ledger.ErrSubmissionRejected) {
			return "", nil, protocolError(r.plan, fmt.Errorf("giving up after %d attempts: %w", attempt, lastReject))
		}
		return "", nil, err
	}
	return id, done, nil
}

// waitForBoundary polls the ledger clock until it reaches boundary. Each wait
// is bounded by BoundaryTimeout and retried with backoff up to BoundaryRetries
// times.
func (r *run) waitForBoundary(ctx context.Context, boundary ledger.BlockDate) (ledger.BlockDate, error) {
	var now ledger.BlockDate
	b := backoff.WithContext(r.retryBackOff(r.params.BoundaryRetries), ctx)
	err := backoff.RetryNotify(func() error {
		var err error
		now, err = r.pollClock(ctx, boundary)
		return err
	}, b, func(err error, next time.Duration) {
		r.logger.Debug().Err(err).Dur("retry_in", next).Msg("tally not open yet")
	})
	return now, err
}

func (r *run) pollClock(ctx context.Context, boundary ledger.BlockDate) (ledger.BlockDate, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.params.BoundaryTimeout)
	defer cancel()
	ticker := time.NewTicker(r.params.PollInterval)
	defer ticker.Stop()

	var (
		now ledger.BlockDate
		err error
	)
	for {
		now, err = r.ledger.Now(waitCtx)
		if err == nil && !now.Before(boundary) {
			return now, nil
		}
		if err != nil && waitCtx.Err() == nil {
			return now, err
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return now, backoff.Permanent(ctx.Err())
			}
			return now, &TimeoutError{
				VotePlan: r.plan,
				Waiting:  fmt.Sprintf("tally start at %s, ledger is at %s", boundary, now),
			}
		case <-ticker.C:
		}
	}
}

// awaitConfirmation polls the status of fragment id until it leaves Pending or
// ConfirmationTimeout passes.
func (r *run) awaitConfirmation(ctx context.Context, id ledger.FragmentID) (ledger.FragmentStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.params.ConfirmationTimeout)
	defer cancel()
	ticker := time.NewTicker(r.params.PollInterval)
	defer ticker.Stop()

	for {
		status, err := r.ledger.FragmentStatus(waitCtx, id)
		if err == nil && status.State != ledger.Pending {
			return status, nil
		}
		if err != nil && waitCtx.Err() == nil {
			return status, err
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return ledger.FragmentStatus{}, err
			}
			return ledger.FragmentStatus{}, &TimeoutError{
				VotePlan: r.plan,
				Waiting:  fmt.Sprintf("confirmation of fragment %.8s", id),
			}
		case <-ticker.C:
		}
	}
}
