package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrRetrieval     = errors.New("retrieval backend failure")
	ErrRerankAPI     = errors.New("rerank api failure")
	ErrLLM           = errors.New("llm generation failure")
	ErrValidation    = errors.New("candidate validation failure")
	ErrTemporary     = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
