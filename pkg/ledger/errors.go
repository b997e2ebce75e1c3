package ledger

import "errors"

var (
	ErrInvalidUserID       = errors.New("user id is required")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidAction       = errors.New("action is required")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrAlreadyCredited     = errors.New("tokens already credited")
	ErrConflict            = errors.New("concurrent ledger update conflict")
	ErrLedgerNotFound      = errors.New("token ledger not found")
	ErrLedgerOutOfBalance  = errors.New("ledger totals do not match transaction log")

	ErrUnknownMetadataKind  = errors.New("unknown transaction metadata kind")
	ErrFailedToEncodeMeta   = errors.New("failed to encode transaction metadata")
	ErrFailedToDecodeMeta   = errors.New("failed to decode transaction metadata")
	ErrFailedToCredit       = errors.New("failed to credit tokens")
	ErrFailedToDebit        = errors.New("failed to debit tokens")
	ErrFailedToLoadLedger   = errors.New("failed to load token ledger")
	ErrFailedToLoadHistory  = errors.New("failed to load token transactions")
	ErrFailedToQueryHistory = errors.New("failed to query token transactions")
)
