package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"magnet-playlets/internal/domain"
)

// months are a fixed 30 days.
var delayMultipliers = map[domain.DelayUnit]int64{
	domain.DelaySeconds: 1,
	domain.DelayMinutes: 60,
	domain.DelayHours:   3600,
	domain.DelayDays:    86400,
	domain.DelayWeeks:   604800,
	domain.DelayMonths:  2592000,
}

// DelayDuration converts a delay action into a wall-clock duration. An empty
// unit means seconds.
func DelayDuration(opts domain.DelayAction) (time.Duration, error) {
	unit := opts.Unit
	if unit == "" {
		unit = domain.DelaySeconds
	}
	mult, ok := delayMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("unknown delay unit: %q", opts.Unit)
	}
	if opts.Amount < 0 {
		return 0, fmt.Errorf("delay must not be negative")
	}
	if opts.Amount > math.MaxInt64/int64(time.Second)/mult {
		return 0, fmt.Errorf("delay of %d %s is too long", opts.Amount, unit)
	}
	return time.Duration(opts.Amount*mult) * time.Second, nil
}

type delayExecutor struct{}

func (delayExecutor) Execute(ctx context.Context, a domain.Action, _ Input) error {
	if a.Delay == nil {
		return missingOptions(a.Type)
	}
	d, err := DelayDuration(*a.Delay)
	if err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
