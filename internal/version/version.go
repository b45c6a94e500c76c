// ABOUTME: Build identity for pcmstream binaries
// ABOUTME: Reported in logs, the TUI title and mDNS names
package version

// Version is overridden at build time with -ldflags "-X"
var Version = "0.3.0"

const (
	Product      = "pcmstream"
	Manufacturer = "mch25"
)
