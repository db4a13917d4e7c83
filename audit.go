package idcore

// Audit event types emitted by the engine.
const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginCredentialUnset = "login_credential_unset"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventRecoveryRequest      = "recovery_request"
	auditEventRecoveryRateLimited  = "recovery_rate_limited"
	auditEventResetConfirm         = "password_reset_confirm"
	auditEventSetupComplete        = "password_setup_complete"
	auditEventAccountCreated       = "account_created"
	auditEventAccountCreateFailed  = "account_create_failed"
	auditEventAccountDuplicate     = "account_duplicate"
	auditEventAccountDeleted       = "account_deleted"
)
