package domain

// Topics produced by identity flows.
const (
	// TopicEmailPrefix routes to the templated email handler; the suffix is informational.
	TopicEmailPrefix = "notification.email."

	TopicPasswordResetEmail     = TopicEmailPrefix + "password_reset"
	TopicEmailVerificationEmail = TopicEmailPrefix + "email_verification"

	// TopicIdentityPrefix routes to the audit sink unless a more specific handler exists.
	TopicIdentityPrefix = "identity."

	TopicInvitationCreated = "identity.invitation.created"
	TopicUserRegistered    = "identity.user.registered"
	TopicUserPasswordReset = "identity.user.password_reset"
	TopicUserEmailVerified = "identity.user.email_verified"
)

// Template types carried in notification.email.* payloads.
const (
	TemplatePasswordReset     = "password_reset"
	TemplateEmailVerification = "email_verification"
)

// EmailPayload is the payload of notification.email.* messages.
type EmailPayload struct {
	TemplateType string `json:"templateType"`
	To           string `json:"to"`
	Name         string `json:"name,omitempty"`
	Link         string `json:"link"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// InvitationPayload is the payload of identity.invitation.created messages.
type InvitationPayload struct {
	Email            string `json:"email"`
	OrganizationName string `json:"organizationName"`
	InviterName      string `json:"inviterName,omitempty"`
	Role             string `json:"role,omitempty"`
	Link             string `json:"link"`
}

// UserEventPayload is the payload of identity.user.* messages.
type UserEventPayload struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	OccurredAt string `json:"occurredAt"`
}
