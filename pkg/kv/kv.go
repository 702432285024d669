// Package kv defines the key-value persistence contract used for the rolling
// telemetry blob and the pass-through credential token.
package kv

import "context"

const (
	KeyProcessLogs = "processLogs"
	KeyTrialToken  = "aiTrialToken"
)

// Store is the persistence collaborator. Get reports found=false for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
