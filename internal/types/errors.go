package types

import "errors"

// Errors on required steps propagate to the caller wrapped around one of these.
var (
	// ErrDocumentParse indicates the uploaded document could not be opened or is corrupt.
	ErrDocumentParse = errors.New("document parse error")

	// ErrNoContent indicates extraction produced nothing that could be indexed.
	ErrNoContent = errors.New("document has no indexable content")

	// ErrStoreUnavailable indicates the vector store could not be reached or rejected the operation.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrCollectionNotFound indicates a search against a collection that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch indicates a vector whose length differs from its collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrDocumentNotFound indicates an unknown document id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates a registry entry is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrGeneration indicates the generative model call failed.
	ErrGeneration = errors.New("generation failed")

	// ErrGenerationTimeout indicates the generative model did not answer in time.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")
)
