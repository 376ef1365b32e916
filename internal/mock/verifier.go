package mock

import (
	"context"

	"github.com/call-deck/backend/internal/verify"
)

// Verifier stands in for the verification service in mock mode. Any
// attempt whose value is "1234" passes.
type Verifier struct{}

func (Verifier) Submit(ctx context.Context, sessionID, method, value string) (verify.Result, error) {
	if value == "1234" {
		return verify.Result{Accepted: true}, nil
	}
	return verify.Result{Accepted: false, Reason: "mismatch"}, nil
}
