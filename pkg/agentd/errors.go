package agentd

import "github.com/bft-labs/agentd/internal/domain"

// Sentinel errors surfaced by orchestrator operations. Match with
// errors.Is against Result.Err.
var (
	ErrDuplicateID        = domain.ErrDuplicateID
	ErrAgentNotFound      = domain.ErrAgentNotFound
	ErrInvalidTransition  = domain.ErrInvalidTransition
	ErrDependencyNotReady = domain.ErrDependencyNotReady
	ErrDependencyCycle    = domain.ErrDependencyCycle
	ErrStartupHook        = domain.ErrStartupHook
	ErrShutdownHook       = domain.ErrShutdownHook
	ErrRetryExhausted     = domain.ErrRetryExhausted
	ErrAllFallbacksFailed = domain.ErrAllFallbacksFailed
	ErrOrchestratorClosed = domain.ErrOrchestratorClosed
	ErrAlreadyRunning     = domain.ErrAlreadyRunning
	ErrShutdownTimeout    = domain.ErrShutdownTimeout
)

// Result reports the outcome of a mutating lifecycle operation. A failed
// operation never panics and never stops the orchestrator; Err carries
// the underlying sentinel for programmatic matching.
type Result struct {
	Success bool
	Message string
	Err     error
}

func okResult() Result {
	return Result{Success: true}
}

func errResult(err error) Result {
	return Result{Message: err.Error(), Err: err}
}

func toResult(err error) Result {
	if err != nil {
		return errResult(err)
	}
	return okResult()
}
