package models

import "time"

// ToolInvocation is one audit row of a completed tool execution (spec.md
// §4.D "every execution ... is audit-logged"). Params are stored as a
// digest rather than the raw payload, since tool parameters can carry file
// contents or command arguments not meant for long-term retention.
type ToolInvocation struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	ProjectID    string    `json:"projectId" db:"project_id"`
	Tool         string    `json:"tool" db:"tool"`
	ParamsDigest string    `json:"paramsDigest" db:"params_digest"`
	RiskTier     string    `json:"riskTier" db:"risk_tier"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage string    `json:"errorMessage,omitempty" db:"error_message"`
	DurationMS   int64     `json:"durationMs" db:"duration_ms"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
