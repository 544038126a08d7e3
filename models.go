package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role
type AccountRole = string

const (
	// RoleIrrigator is a property holder (i.e. view own lots, devices)
	RoleIrrigator AccountRole = "irrigator"
	// RoleOperator is district staff (i.e. view, edit)
	RoleOperator AccountRole = "operator"
	// RoleAdmin manages accounts and company data
	RoleAdmin AccountRole = "admin"
)

// AccountStatus tracks where an account sits in the provisioning lifecycle.
type AccountStatus string

const (
	// AccountStatusUnprovisioned is a bulk-imported identity with no credentials
	AccountStatusUnprovisioned AccountStatus = "unprovisioned"
	// AccountStatusPendingActivation has credentials but an unconsumed activation token
	AccountStatusPendingActivation AccountStatus = "pending_activation"
	// AccountStatusActive has completed activation (or was created active by an admin)
	AccountStatusActive AccountStatus = "active"
)

// Account is the identity model. Document fields are immutable once
// validated; Enabled is an admin toggle orthogonal to Status.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           AccountRole   `bun:"account_role,notnull" json:"account_role,omitempty"`
	FirstName      string        `bun:"first_name" json:"first_name,omitempty"`
	LastName       string        `bun:"last_name" json:"last_name,omitempty"`
	DocumentTypeID int           `bun:"document_type_id,notnull" json:"document_type_id,omitempty"`
	DocumentNumber string        `bun:"document_number,notnull,unique:accounts_document" json:"document_number,omitempty"`
	DateIssuance   time.Time     `bun:"date_issuance_document,notnull" json:"date_issuance_document,omitempty"`
	Email          string        `bun:"email,nullzero,unique" json:"email,omitempty"`
	PasswordHash   string        `bun:"password_hash" json:"-"`
	PasswordSalt   string        `bun:"password_salt" json:"-"`
	Status         AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	EmailVerified  bool          `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Enabled        bool          `bun:"is_enabled" json:"is_enabled,omitempty"`
	LoginAttempts  int           `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time    `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastResendAt   *time.Time    `bun:"last_resend_at" json:"last_resend_at,omitempty"`
	LoggedInAt     *time.Time    `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value for records created before the
// lifecycle column existed.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusUnprovisioned
	}
}

// IsValid checks if the status is one of the predefined lifecycle states
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusUnprovisioned, AccountStatusPendingActivation, AccountStatusActive:
		return true
	default:
		return false
	}
}

// CanLogin reports whether the account may authenticate: lifecycle complete,
// email verified, and not disabled by an admin.
func (a *Account) CanLogin() bool {
	return a.Status == AccountStatusActive && a.EmailVerified && a.Enabled
}

// PasswordReset is a single-use opaque reset token. At most one live row per
// email; issuing a new token deletes the previous ones.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_reset,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// PreRegisterToken gates the credential-provisioning step after document
// validation. Single use via the Used flag so the audit trail survives.
type PreRegisterToken struct {
	bun.BaseModel `bun:"table:pre_register_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account   `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Used          bool       `bun:"used,notnull" json:"used,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// ActivationToken confirms email ownership and completes the lifecycle.
type ActivationToken struct {
	bun.BaseModel `bun:"table:activation_tokens,alias:act"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account   `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Used          bool       `bun:"used,notnull" json:"used,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// RevokedToken records a session token invalidated before natural expiry.
// Rows are dead once ExpiresAt passes; PurgeExpired sweeps them.
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rvk"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsExpired reports whether the reset token is past its expiry.
func (p *PasswordReset) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// IsExpired reports whether the pre-register token is past its expiry.
func (t *PreRegisterToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsExpired reports whether the activation token is past its expiry.
func (t *ActivationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
