package row

import "fmt"

// Cancelled is the distinguished variant every lifted task may resolve to
// when the host cancels a suspended computation. Cancellation is observable
// data, never silent non-completion.
type Cancelled struct {
	// Cause is the host's cancellation error, e.g. context.Canceled or
	// context.DeadlineExceeded.
	Cause error
}

func (c Cancelled) Tag() string { return "cancelled" }

func (c Cancelled) Error() string {
	if c.Cause == nil {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled: %v", c.Cause)
}

func (c Cancelled) Unwrap() error { return c.Cause }
