// Package driver defines the browser collaborators the engine consumes and
// provides a go-rod implementation of them.
package driver

import (
	"context"

	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/proxy"
	"github.com/Rorqualx/proxydl/internal/windows"
)

// Driver controls one browser.
type Driver interface {
	windows.Driver

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Clicker is implemented by drivers that can click page elements.
type Clicker interface {
	Click(ctx context.Context, selector string) error
}

// Session couples a driver with the proxy its traffic flows through.
type Session interface {
	WebDriver() Driver
	// Proxy returns nil when the session runs without a proxy.
	Proxy() *proxy.Server
	Config() *config.Config
}
