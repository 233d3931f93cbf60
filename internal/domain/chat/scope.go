package chat

// Sentinel identifiers substituted when a request omits identity fields.
const (
	DefaultUserID         = "default-user"
	DefaultConversationID = "default-conversation"
)

// Scope is the (userId, conversationId[, tenant]) tuple that partitions all
// message storage and retrieval. No message crosses scopes.
type Scope struct {
	UserID         string
	ConversationID string

	// Tenant is set only in multi-tenant deployments; empty in local mode.
	Tenant string
}

// ScopeResolver derives the effective scope for a request. The tenant is
// fixed at construction from process-wide configuration rather than read
// per call.
type ScopeResolver struct {
	tenant string
}

// NewScopeResolver creates a resolver. Pass an empty tenant for
// single-tenant (local) deployments.
func NewScopeResolver(tenant string) *ScopeResolver {
	return &ScopeResolver{tenant: tenant}
}

// Resolve substitutes sentinel defaults for missing identity fields and
// attaches the configured tenant. No side effects, no failure modes.
func (r *ScopeResolver) Resolve(userID, conversationID string) Scope {
	if userID == "" {
		userID = DefaultUserID
	}
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	return Scope{
		UserID:         userID,
		ConversationID: conversationID,
		Tenant:         r.tenant,
	}
}
