package types

// Graph API path templates. Every path is prefixed with the API version.
const (
	EndpointMessageTemplates = "/%s/%s/message_templates"
	EndpointObject           = "/%s/%s"
	EndpointMessages         = "/%s/%s/messages"
)

// Template statuses reported by the provider
const (
	TemplateStatusApproved = "APPROVED"
	TemplateStatusRejected = "REJECTED"
	TemplateStatusPending  = "PENDING"
	TemplateStatusPaused   = "PAUSED"
	TemplateStatusDisabled = "DISABLED"
)

// Template categories accepted at creation
const (
	CategoryMarketing      = "MARKETING"
	CategoryUtility        = "UTILITY"
	CategoryAuthentication = "AUTHENTICATION"
)

// Inbound message kinds
const (
	MessageKindText        = "text"
	MessageKindImage       = "image"
	MessageKindButton      = "button"
	MessageKindInteractive = "interactive"
)

const (
	MessagingProduct     = "whatsapp"
	RecipientIndividual  = "individual"
	WebhookFieldMessages = "messages"
	WebhookObjectWABA    = "whatsapp_business_account"
)
