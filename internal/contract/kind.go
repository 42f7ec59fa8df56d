package contract

import "errors"

// ErrorKind names the boundary an error belongs to. Timeline entries record
// it as the error_type detail on failed phases.
func ErrorKind(err error) string {
	var (
		semErr *SemanticError
		genErr *GenerationError
		stoErr *StorageError
		queErr *QueueError
		exeErr *ExecutionError
		valErr *ValidationError
	)
	switch {
	case errors.As(err, &semErr):
		return "SemanticAdapterError"
	case errors.As(err, &genErr):
		return "GenerationAdapterError"
	case errors.As(err, &stoErr):
		return "StorageAdapterError"
	case errors.As(err, &queErr):
		return "QueueAdapterError"
	case errors.As(err, &exeErr):
		return "ExecutionAdapterError"
	case errors.As(err, &valErr):
		return "ValidationError"
	default:
		return "Error"
	}
}
