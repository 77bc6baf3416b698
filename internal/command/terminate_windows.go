//go:build windows

package command

import "os"

// terminateGracefully has no portable graceful-signal equivalent on
// Windows; Kill is the closest available primitive and Close's grace
// period + force-kill fallback still applies uniformly.
func terminateGracefully(p *os.Process) error {
	return p.Kill()
}
