// Package windows closes browser windows opened as a side effect of an action.
package windows

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Driver is the subset of a browser driver needed to manage windows.
type Driver interface {
	WindowHandles(ctx context.Context) ([]string, error)
	CurrentWindow(ctx context.Context) (string, error)
	SwitchToWindow(ctx context.Context, handle string) error
	CloseWindow(ctx context.Context, handle string) error
}

// RunAndCloseArisedWindows runs action and afterwards closes every window
// that did not exist before it, then switches back to the window that was
// current. Cleanup also runs when action fails or panics. Cleanup failures
// are logged and never replace the action's result.
func RunAndCloseArisedWindows[T any](ctx context.Context, d Driver, action func() (T, error)) (result T, err error) {
	before, err := d.WindowHandles(ctx)
	if err != nil {
		return result, fmt.Errorf("list windows: %w", err)
	}
	original, err := d.CurrentWindow(ctx)
	if err != nil {
		return result, fmt.Errorf("current window: %w", err)
	}

	defer closeNewWindows(context.WithoutCancel(ctx), d, before, original)
	return action()
}

func closeNewWindows(ctx context.Context, d Driver, before []string, original string) {
	known := make(map[string]struct{}, len(before))
	for _, h := range before {
		known[h] = struct{}{}
	}

	after, err := d.WindowHandles(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list windows after action")
		return
	}

	closed := 0
	for _, h := range after {
		if _, ok := known[h]; ok {
			continue
		}
		if err := d.CloseWindow(ctx, h); err != nil {
			log.Warn().Err(err).Str("window", h).Msg("Failed to close window opened by action")
			continue
		}
		closed++
	}

	if closed > 0 {
		log.Debug().Int("closed", closed).Msg("Closed windows opened by action")
	}
	if err := d.SwitchToWindow(ctx, original); err != nil {
		log.Warn().Err(err).Str("window", original).Msg("Failed to switch back to original window")
	}
}
