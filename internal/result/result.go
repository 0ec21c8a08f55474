package result

// Kind classifies a failed Result so callers can map it to a transport code
// without inspecting error strings.
type Kind string

const (
	KindOK            Kind = "ok"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindConflict      Kind = "conflict"
	KindUnprocessable Kind = "unprocessable_entity"
	KindValidation    Kind = "validation"
	KindInternal      Kind = "internal"
)

// Result is the success/failure envelope returned by every service operation.
type Result[T any] struct {
	Success bool     `json:"success"`
	Data    *T       `json:"data"`
	Errors  []string `json:"errors"`
	Status  Kind     `json:"status"`
}

// OK wraps data in a successful Result.
func OK[T any](data T) Result[T] {
	return Result[T]{
		Success: true,
		Data:    &data,
		Errors:  []string{},
		Status:  KindOK,
	}
}

// Fail builds a failed Result of the given kind.
func Fail[T any](kind Kind, messages ...string) Result[T] {
	if messages == nil {
		messages = []string{}
	}
	return Result[T]{
		Success: false,
		Errors:  messages,
		Status:  kind,
	}
}

func NotFound[T any](messages ...string) Result[T] {
	return Fail[T](KindNotFound, messages...)
}

func Forbidden[T any](messages ...string) Result[T] {
	return Fail[T](KindForbidden, messages...)
}

func Unprocessable[T any](messages ...string) Result[T] {
	return Fail[T](KindUnprocessable, messages...)
}

func Validation[T any](messages ...string) Result[T] {
	return Fail[T](KindValidation, messages...)
}

// Internal hides the underlying cause; callers log it before building the Result.
func Internal[T any]() Result[T] {
	return Fail[T](KindInternal, "an unexpected error occurred")
}

// Error returns the first error message, or the empty string for a success.
func (r Result[T]) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

// Value returns the payload, or the zero value when the Result failed.
func (r Result[T]) Value() T {
	var zero T
	if r.Data == nil {
		return zero
	}
	return *r.Data
}
