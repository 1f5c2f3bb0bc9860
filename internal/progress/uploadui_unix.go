//go:build !windows

package progress

import "os"

// enableWindowsANSI does nothing: Unix terminals understand ANSI sequences.
func enableWindowsANSI(*os.File) {}
