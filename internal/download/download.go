// Package download triggers file downloads in a session and waits for the
// proxy to capture them.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/driver"
	"github.com/Rorqualx/proxydl/internal/files"
	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/proxy"
	"github.com/Rorqualx/proxydl/internal/report"
	"github.com/Rorqualx/proxydl/internal/types"
	"github.com/Rorqualx/proxydl/internal/waiter"
	"github.com/Rorqualx/proxydl/internal/windows"
)

// Action performs the user interaction expected to start a download.
type Action func(ctx context.Context, d driver.Driver) error

// Click returns an Action clicking the first element matching selector.
func Click(selector string) Action {
	return func(ctx context.Context, d driver.Driver) error {
		c, ok := d.(driver.Clicker)
		if !ok {
			return types.ErrClickUnsupported
		}
		return c.Click(ctx, selector)
	}
}

// Navigate returns an Action opening url in the current window.
func Navigate(url string) Action {
	return func(ctx context.Context, d driver.Driver) error {
		return d.Navigate(ctx, url)
	}
}

// Status tells how a capture ended.
type Status int

const (
	Found Status = iota
	TimedOut
)

func (s Status) String() string {
	if s == Found {
		return "found"
	}
	return "timed_out"
}

// Outcome is the result of a capture.
type Outcome struct {
	Status  Status
	File    *files.DownloadedFile // First matching file when Found
	Seen    files.Downloads       // Everything captured after the reset
	Elapsed time.Duration
}

// PreviousDownloadsCompleted holds once the capture count did not change
// between two consecutive polls. Each returned condition keeps its own state.
func PreviousDownloadsCompleted() waiter.Condition[*proxy.DownloadFilter] {
	last := -1
	return func(f *proxy.DownloadFilter) bool {
		n := f.Size()
		stable := n == last
		last = n
		return stable
	}
}

// HasDownloads holds once any captured file matches filter.
func HasDownloads(filter files.Filter) waiter.Condition[*proxy.DownloadFilter] {
	return func(f *proxy.DownloadFilter) bool {
		return len(f.Downloads().Files(filter)) > 0
	}
}

// Downloader runs download actions against session proxies.
type Downloader struct {
	reporter report.Reporter
}

// New returns a Downloader reporting through r. A nil r disables reporting.
func New(r report.Reporter) *Downloader {
	if r == nil {
		r = report.Nop{}
	}
	return &Downloader{reporter: r}
}

// Download runs action and returns the first file matching filter that the
// session proxy captured within timeout. Windows opened by action are closed
// before returning. When nothing matches it returns
// *types.NoFilesDownloadedError.
func (dl *Downloader) Download(ctx context.Context, sess driver.Session, label string, action Action, timeout time.Duration, filter files.Filter) (*files.DownloadedFile, error) {
	if filter == nil {
		filter = files.None()
	}

	var file *files.DownloadedFile
	err := dl.reporter.Run("download", label, func() error {
		out, err := dl.Capture(ctx, sess, action, timeout, filter)
		if err != nil {
			return err
		}
		if out.Status == Found {
			file = out.File
			return nil
		}
		if p := sess.Proxy(); p != nil && p.DownloadFilter() != nil {
			log.Debug().Str("label", label).Msg(p.DownloadFilter().ResponsesString())
		}
		_, err = out.Seen.FirstDownloadedFile(label, timeout, filter)
		return err
	})
	return file, err
}

// Capture is Download with the outcome returned instead of a timeout error.
// Errors are reserved for precondition failures, action failures and
// context cancellation.
func (dl *Downloader) Capture(ctx context.Context, sess driver.Session, action Action, timeout time.Duration, filter files.Filter) (Outcome, error) {
	if filter == nil {
		filter = files.None()
	}

	cfg := sess.Config()
	if !cfg.ProxyEnabled {
		return Outcome{}, types.ErrProxyNotEnabled
	}
	p := sess.Proxy()
	if p == nil || !p.IsStarted() {
		return Outcome{}, types.ErrProxyNotStarted
	}
	df := p.DownloadFilter()
	if df == nil {
		return Outcome{}, types.ErrDownloadFilterNotActive
	}

	df.Activate()
	defer df.Deactivate()

	interval := waiter.Floor(cfg.PollingInterval)
	if err := waitForPreviousDownloads(ctx, df, cfg.StabilizationTimeout, interval); err != nil {
		return Outcome{}, err
	}
	df.Reset()

	d := sess.WebDriver()
	return windows.RunAndCloseArisedWindows(ctx, d, func() (Outcome, error) {
		if err := action(ctx, d); err != nil {
			return Outcome{}, fmt.Errorf("download action: %w", err)
		}

		out, err := waiter.Poll(ctx, df, HasDownloads(filter), timeout, interval)
		metrics.ObserveWait("download", out.Satisfied, out.Elapsed)
		if err != nil {
			return Outcome{}, err
		}

		seen := df.Downloads()
		res := Outcome{Status: TimedOut, Seen: seen, Elapsed: out.Elapsed}
		if out.Satisfied {
			if matched := seen.Files(filter); len(matched) > 0 {
				res.Status = Found
				res.File = matched[0]
			}
		}
		return res, nil
	})
}

// waitForPreviousDownloads lets responses from earlier activity settle so the
// following reset does not race with them. Giving up after limit is not an
// error.
func waitForPreviousDownloads(ctx context.Context, df *proxy.DownloadFilter, limit, interval time.Duration) error {
	out, err := waiter.Poll(ctx, df, PreviousDownloadsCompleted(), limit, interval)
	metrics.ObserveWait("stabilization", out.Satisfied, out.Elapsed)
	if err != nil {
		return err
	}
	if out.TimedOut() {
		log.Warn().
			Dur("limit", limit).
			Int("downloads", df.Size()).
			Msg("Previous downloads still arriving, resetting anyway")
	}
	return nil
}
