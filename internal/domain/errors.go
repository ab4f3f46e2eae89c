package domain

import "errors"

// Error kinds recognized by the pipeline. Components wrap these with
// fmt.Errorf("%w: ...") so callers can branch with errors.Is.
var (
	// ErrConfig indicates invalid chunking or component parameters.
	ErrConfig = errors.New("invalid configuration")

	// ErrEmbedding indicates the embedding backend was unreachable or
	// returned a malformed vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexEmpty indicates every chunk failed to embed, so no index
	// could be built.
	ErrIndexEmpty = errors.New("no chunks could be indexed")

	// ErrRetrieval indicates similarity search failed or there is no
	// index to search.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrComposition indicates the model-completion call failed or
	// timed out.
	ErrComposition = errors.New("answer composition failed")
)
