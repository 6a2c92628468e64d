// Package bridgeerr classifies bridge errors into the taxonomy of kinds
// spec'd for the engine: transient RPC failures that are retried, policy
// violations that are logged and quarantined, state conflicts treated as
// success-equivalent, cryptographic/domain errors surfaced to the facade
// caller, and fatal errors that crash the process.
package bridgeerr

import (
	"errors"
	"net/http"
)

// Category is the coarse-grained error kind used to decide relayer and
// HTTP-facade behavior.
type Category int

const (
	// CategoryNone is the zero value: no error.
	CategoryNone Category = iota
	// CategoryTransient covers NodeUnavailable, Timeout, RateLimited.
	// Retried on the next tick; cursors are not advanced past the event.
	CategoryTransient
	// CategoryPolicy covers MalformedMemo, UnexpectedAmount, UnclaimableDeposit.
	// Logged, marked on the row, cursor advances, operator action required.
	CategoryPolicy
	// CategoryConflict covers AlreadyClaimed, NonceMismatch.
	// Treated as success-equivalent; the relayer proceeds.
	CategoryConflict
	// CategoryDomain covers MalformedAccountId, MalformedSecret, DerivationMismatch.
	// Surfaced to the facade caller; must never reach the relayers.
	CategoryDomain
	// CategoryFatal covers StoreCorrupt, ConfigMissing.
	// The process exits non-zero; a supervisor restarts it.
	CategoryFatal
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPolicy:
		return "policy"
	case CategoryConflict:
		return "conflict"
	case CategoryDomain:
		return "domain"
	case CategoryFatal:
		return "fatal"
	default:
		return "none"
	}
}

// Kind is the specific error identifier within a Category, e.g. "Timeout"
// or "MalformedMemo". Kinds are named exactly as spec.md §7 names them.
type Kind string

const (
	KindNodeUnavailable    Kind = "NodeUnavailable"
	KindTimeout            Kind = "Timeout"
	KindRateLimited        Kind = "RateLimited"
	KindMalformedMemo      Kind = "MalformedMemo"
	KindUnexpectedAmount   Kind = "UnexpectedAmount"
	KindUnclaimableDeposit Kind = "UnclaimableDeposit"
	KindBelowDustThreshold Kind = "BelowDustThreshold"
	KindAlreadyClaimed     Kind = "AlreadyClaimed"
	KindNonceMismatch      Kind = "NonceMismatch"
	KindMalformedAccountID Kind = "MalformedAccountId"
	KindMalformedSecret    Kind = "MalformedSecret"
	KindDerivationMismatch Kind = "DerivationMismatch"
	KindStoreCorrupt       Kind = "StoreCorrupt"
	KindConfigMissing      Kind = "ConfigMissing"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindExpiryRejected     Kind = "ExpiryRejected"
	KindAccountNotReady    Kind = "AccountNotReady"
)

var kindCategory = map[Kind]Category{
	KindNodeUnavailable:    CategoryTransient,
	KindTimeout:            CategoryTransient,
	KindRateLimited:        CategoryTransient,
	KindMalformedMemo:      CategoryPolicy,
	KindUnexpectedAmount:   CategoryPolicy,
	KindUnclaimableDeposit: CategoryPolicy,
	KindBelowDustThreshold: CategoryPolicy,
	KindAlreadyClaimed:     CategoryConflict,
	KindNonceMismatch:      CategoryConflict,
	KindMalformedAccountID: CategoryDomain,
	KindMalformedSecret:    CategoryDomain,
	KindDerivationMismatch: CategoryDomain,
	KindStoreCorrupt:       CategoryFatal,
	KindConfigMissing:      CategoryFatal,
	KindInsufficientFunds:  CategoryPolicy,
	KindExpiryRejected:     CategoryTransient,
	KindAccountNotReady:    CategoryTransient,
}

// BridgeError is the error type returned across client, store, and relayer
// boundaries. It carries enough structure for the relayer to decide
// retry/quarantine/surface and for the HTTP facade to pick a status code.
type BridgeError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// Category returns the error's coarse-grained kind.
func (e *BridgeError) Category() Category {
	if cat, ok := kindCategory[e.Kind]; ok {
		return cat
	}
	return CategoryFatal
}

// New builds a BridgeError of the given kind, wrapping err.
func New(kind Kind, message string, err error) error {
	return &BridgeError{Kind: kind, Message: message, Err: err}
}

// Classify extracts the Category of err, defaulting to CategoryFatal for
// errors that did not originate from this package (unexpected failures are
// treated conservatively rather than silently retried forever).
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Category()
	}
	return CategoryFatal
}

// KindOf extracts the Kind of err, or "" if err is not a BridgeError.
func KindOf(err error) Kind {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsTransient reports whether err should be retried on the next tick
// without advancing any cursor.
func IsTransient(err error) bool {
	return Classify(err) == CategoryTransient
}

// IsConflict reports whether err is success-equivalent (the event was
// already handled by a previous attempt).
func IsConflict(err error) bool {
	return Classify(err) == CategoryConflict
}

// StatusCode maps a BridgeError's Category to the HTTP facade's response code.
func StatusCode(err error) int {
	switch Classify(err) {
	case CategoryDomain, CategoryPolicy:
		return http.StatusBadRequest
	case CategoryConflict:
		return http.StatusConflict
	case CategoryTransient:
		return http.StatusBadGateway
	case CategoryFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
