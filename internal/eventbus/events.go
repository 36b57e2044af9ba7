package eventbus

// Topics published by the bot. Subscribers switch on Event.Type.
const (
	TopicDispatch    = "dispatch.outcome"
	TopicWebhook     = "webhook.outcome"
	TopicChatEvent   = "chat.event"
	TopicActionError = "template.action_error"
	TopicReload      = "config.reloaded"
)

// Dispatch outcomes.
const (
	OutcomeSent         = "sent"
	OutcomeFailed       = "failed"
	OutcomeUnauthorized = "unauthorized"
	OutcomeCooldown     = "cooldown"
	OutcomeIgnored      = "ignored"
)

// Webhook outcomes.
const (
	WebhookQueued  = "queued"
	WebhookSent    = "sent"
	WebhookFailed  = "failed"
	WebhookDropped = "dropped"
)

// DispatchEvent is the payload of TopicDispatch. Kind is "chat", "raid" or "subscribe".
type DispatchEvent struct {
	ReqID   string `json:"req_id"`
	Kind    string `json:"kind"`
	Channel string `json:"channel"`
	Command string `json:"command,omitempty"`
	User    string `json:"user,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	TookMS  int64  `json:"took_ms"`
}

// WebhookEvent is the payload of TopicWebhook. Host is the webhook host only;
// webhook URLs embed secrets.
type WebhookEvent struct {
	Key      string `json:"key,omitempty"`
	Host     string `json:"host"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChatEventSeen is the payload of TopicChatEvent.
type ChatEventSeen struct {
	Kind    string `json:"kind"`
	Channel string `json:"channel"`
}

// ActionErrorEvent is the payload of TopicActionError.
type ActionErrorEvent struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

// ReloadEvent is the payload of TopicReload.
type ReloadEvent struct {
	Channels int    `json:"channels"`
	Summary  string `json:"summary,omitempty"`
}
