package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Niche errors
	ErrNicheNotFound  = errors.New("niche not found")
	ErrNicheSlugTaken = errors.New("niche slug already in use")

	// Device errors
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceUDIDTaken   = errors.New("device UDID already registered")
	ErrDeviceEndpointBusy = errors.New("automation port already bound to another device on this host")
	ErrDeviceUnreachable = errors.New("device automation endpoint unreachable")

	// Account errors
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountUsernameTaken  = errors.New("username already in use for this platform")
	ErrAccountDeleted        = errors.New("account is soft-deleted")
	ErrIllegalTransition     = errors.New("illegal account state transition")
	ErrNoEligibleAccount     = errors.New("no account eligible for a warming task")
	ErrNoEligibleNiche       = errors.New("no active niche eligible for a creation task")

	// Claim protocol errors
	ErrClaimConflict = errors.New("account claimed by another worker")

	// Credential codec errors
	ErrMasterKeyMissing  = errors.New("master encryption key not set")
	ErrMasterKeyInvalid  = errors.New("master encryption key has invalid length")
	ErrDecryptionFailed  = errors.New("credential decryption failed")

	// Session runner errors
	ErrInstallFailed    = errors.New("app reset (uninstall/reinstall) failed")
	ErrLoginFailed      = errors.New("login failed")
	ErrWarmingFailed    = errors.New("warming run failed")
	ErrSessionBudgetExceeded = errors.New("session exceeded its time budget")

	// Creation runner errors
	ErrCreationCollaboratorsMissing = errors.New("CAPTCHA/IMAP/SMS collaborators not configured")
	ErrCaptchaFailed                = errors.New("CAPTCHA solve failed")
	ErrEmailVerificationTimeout     = errors.New("email verification link not received in time")
	ErrSMSVerificationTimeout       = errors.New("SMS verification code not received in time")

	// Event log errors
	ErrEventNotFound = errors.New("event not found")

	// Store contention
	ErrStoreContention = errors.New("store contention exceeded retry budget")
)
