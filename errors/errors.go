package errors

import "errors"

// Sentinel errors for the answer pipeline. Adapters wrap these with
// fmt.Errorf("...: %w", err) so callers can match with errors.Is.
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that request validation failed before any
	// network call was made
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceUnavailable indicates the vector index or web search could
	// not be reached. Adapters recover from it with an empty pool.
	ErrSourceUnavailable = errors.New("context source unavailable")

	// ErrEmbeddingFailure indicates the embedder failed or returned a
	// malformed vector
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrNoContext indicates that no context survived fetching. It is
	// informational and never terminates a request.
	ErrNoContext = errors.New("no context available")

	// ErrGenerationFailure indicates that the LLM call failed; terminal for
	// the request
	ErrGenerationFailure = errors.New("generation failure")

	// ErrOracleFailure indicates the faithfulness oracle failed
	ErrOracleFailure = errors.New("faithfulness oracle failure")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
