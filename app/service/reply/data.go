package reply

// Request carries everything the downstream agent gets per turn: the
// bounded fused context plus the current routing tags.
type Request struct {
	ThreadID      string
	Message       string
	FusedContext  string
	ActiveDomain  string
	CurrentIntent string
}

// AgentReply is the downstream agent's answer plus its routing
// suggestion for the next turn.
type AgentReply struct {
	Response      string `json:"response"`
	ActiveDomain  string `json:"active_domain"`
	CurrentIntent string `json:"current_intent"`
}
