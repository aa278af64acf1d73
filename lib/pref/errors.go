package pref

import (
	"github.com/jmgilman/go/errors"
)

// Error codes of the preference layer. Codes unknown to the errors package
// classify as permanent.
const (
	// CodeNotReady marks a get or set on a preference whose store is not open yet.
	CodeNotReady errors.ErrorCode = "NOT_READY"
	// CodeContextUnavailable marks a failure to open the store of a scope.
	CodeContextUnavailable errors.ErrorCode = "CONTEXT_UNAVAILABLE"
	// CodeStore marks a failed read or write of the underlying store.
	CodeStore = errors.CodeDatabase
)

func configurationError(format string, args ...interface{}) error {
	return errors.Newf(errors.CodeInvalidConfig, format, args...)
}

func notReady(key Key) error {
	return errors.WithContext(
		errors.New(CodeNotReady, "preference is not ready"),
		"key", key.String(),
	)
}

func contextUnavailable(key Key, cause error) error {
	var err error
	if cause == nil {
		err = errors.New(CodeContextUnavailable, "no store available")
	} else {
		err = errors.Wrap(cause, CodeContextUnavailable, "cannot open store")
	}
	return errors.WithContext(err, "key", key.String())
}

// storeError wraps a failed store call. The store already gave up, so the
// error is permanent even though database errors default to retryable.
func storeError(key Key, op string, cause error) error {
	return errors.WithClassification(
		errors.Wrapf(cause, CodeStore, "%s %s", op, key),
		errors.ClassificationPermanent,
	)
}

// IsConfigurationError reports whether err is a ConfigurationError, e.g. a
// Kind without store functions.
func IsConfigurationError(err error) bool {
	return errors.GetCode(err) == errors.CodeInvalidConfig
}

// IsNotReady reports whether err was caused by using a preference before its
// store was opened.
func IsNotReady(err error) bool {
	return errors.GetCode(err) == CodeNotReady
}

// IsContextUnavailable reports whether err was caused by a failure to open the
// store.
func IsContextUnavailable(err error) bool {
	return errors.GetCode(err) == CodeContextUnavailable
}

// IsStoreError reports whether err was caused by the underlying store.
func IsStoreError(err error) bool {
	return errors.GetCode(err) == CodeStore
}
