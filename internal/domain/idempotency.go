package domain

import "encoding/json"

// IdempotencyRecord is a completed request stored under a client key. The
// key is scoped per user; Scope names the operation it was used for.
type IdempotencyRecord struct {
	UserID       int64
	Key          string
	Scope        string
	RequestHash  string
	ResponseBody json.RawMessage
}
