package core

import "errors"

var (
	// ErrChallengeNotFound is returned when a ceremony challenge does not
	// exist, was already consumed, or expired. Callers cannot distinguish
	// these cases.
	ErrChallengeNotFound = errors.New("challenge not found or expired")

	// ErrVerificationFailed is returned when an authenticator response does
	// not validate against the issued challenge.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCredentialLimitExceeded is returned when an identity already holds
	// the maximum number of active credentials.
	ErrCredentialLimitExceeded = errors.New("credential limit exceeded")

	// ErrCredentialNotFound is returned when no active credential matches
	// an assertion response.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrWalletConflict is returned when the resolved wallet address is
	// already claimed by a different identity.
	ErrWalletConflict = errors.New("wallet address already claimed")

	// ErrCounterRegression is returned when an assertion reports a usage
	// counter at or below the stored value.
	ErrCounterRegression = errors.New("usage counter did not advance")

	// ErrSessionInvalid is returned uniformly for any session validation
	// failure: bad signature, expiry, or missing record.
	ErrSessionInvalid = errors.New("session is invalid or expired")

	// ErrIdentityNotFound is returned when an identity lookup misses.
	ErrIdentityNotFound = errors.New("identity not found")
)
