package execution

import (
	"context"
	"fmt"
)

// budget caps the external calls of one attempt. The context carries the
// time limit.
type budget struct {
	limit int
	used  int
}

func (b *budget) spend(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResourceBudgetExceeded, step, err)
	}
	if b.limit > 0 && b.used >= b.limit {
		return fmt.Errorf("%w: %d steps used before %s", ErrResourceBudgetExceeded, b.used, step)
	}
	b.used++
	return nil
}

// external wraps an error from an outside call, blaming the deadline when it hit.
func external(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", ErrResourceBudgetExceeded, step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}
