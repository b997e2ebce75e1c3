// Package ledger implements a per-user token ledger backed by an append-only
// transaction log.
//
// Each user has at most one Ledger holding the spendable Balance and the
// cumulative UsedTotal. Every change is recorded as an immutable Transaction
// with a signed amount, so for any user
//
//	Balance   = sum of credit amounts - sum of debit amounts
//	UsedTotal = sum of debit amounts
//
// Service.Audit checks exactly that.
//
// # Credits and debits
//
// Credit creates the ledger on first use and appends one transaction. A
// subscription credit that creates the ledger is recorded as initial_credit.
// Credits may carry a DedupeKey; a key is accepted once and repeats fail with
// ErrAlreadyCredited, which is how webhook redeliveries and concurrent renewal
// sweeps are collapsed into a single credit. Credit with a non-positive amount
// is a no-op returning (nil, nil).
//
// Debit only succeeds when the balance covers the amount. The check and the
// decrement happen in one conditional update, so concurrent debits can never
// drive the balance below zero; the losers get ErrInsufficientBalance.
//
// # Storage
//
// MemoryStore keeps everything behind a mutex. PostgresStore uses pgx with
// INSERT ... ON CONFLICT DO UPDATE for credits and UPDATE ... WHERE balance >= n
// for debits, each paired with the transaction insert in one database
// transaction. Serialization failures surface as ErrConflict and the Service
// retries them once.
//
// # Metadata
//
// Transaction metadata is a closed set of types: SubscriptionMetadata,
// PurchaseMetadata and UsageMetadata. MarshalMetadata stores them as flat JSON
// with a "kind" discriminator.
//
//	svc := ledger.NewService(ledger.NewPostgresStore(pool), ledger.WithLogger(log))
//
//	_, err := svc.Debit(ctx, ledger.DebitParams{
//		UserID:   userID,
//		Amount:   5,
//		Action:   "image_generation",
//		Metadata: ledger.UsageMetadata{Feature: "images", Reference: jobID},
//	})
//	if errors.Is(err, ledger.ErrInsufficientBalance) {
//		// ask the user to upgrade
//	}
package ledger
