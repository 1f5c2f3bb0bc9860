package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/tablerag/tablerag-client/internal/constants"
)

// ByteTracker observes spreadsheet bytes as they are streamed into a request.
// Finish must be called once the request has returned.
type ByteTracker interface {
	Track(name string, size int64, r io.Reader) io.Reader
	Finish(err error)
}

// UploadUI renders one mpb bar per file being uploaded.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
	started    int32 // Atomic counter for file index (1, 2, 3, ...)

	mu   sync.Mutex
	bars []*mpb.Bar
}

// NewUploadUI creates an upload UI on stderr for totalFiles files. Without a
// terminal no bars are drawn.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := IsTerminal(os.Stderr)
	if isTerminal {
		// Enable ANSI escape sequences on Windows for proper progress bar rendering
		enableANSIOnWindows(os.Stderr)
	}
	return newUploadUI(os.Stderr, isTerminal, totalFiles)
}

func newUploadUI(w io.Writer, isTerminal bool, totalFiles int) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: disable progress bars
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        w,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// Track wraps r so bytes read from it advance a new bar. size may be -1.
func (u *UploadUI) Track(name string, size int64, r io.Reader) io.Reader {
	index := int(atomic.AddInt32(&u.started, 1))
	if !u.isTerminal {
		return r
	}

	total := size
	if total < 0 {
		total = 0
	}
	label := fmt.Sprintf("[%d/%d] %s", index, u.totalFiles, truncatePath(name, 2))
	if size >= 0 {
		label = fmt.Sprintf("%s (%.1f MiB)", label, float64(size)/(1024*1024))
	}

	bar := u.progress.New(total,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			decor.Name("  "),
			decor.Name("ETA ", decor.WCSyncWidth),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
		mpb.BarRemoveOnComplete(),
	)

	u.mu.Lock()
	u.bars = append(u.bars, bar)
	u.mu.Unlock()

	return bar.ProxyReader(r)
}

// Finish completes every bar (or aborts them on err) and waits for rendering to stop.
func (u *UploadUI) Finish(err error) {
	u.mu.Lock()
	bars := u.bars
	u.bars = nil
	u.mu.Unlock()

	for _, bar := range bars {
		if err != nil {
			bar.Abort(false) // keep the bar visible to show where it stopped
		} else {
			bar.SetTotal(-1, true)
		}
	}
	u.progress.Wait()
}

// Writer returns an io.Writer that safely prints above the progress bars
func (u *UploadUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if progress bars are active.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.xlsx", 3) → "…/c/d/file.xlsx"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows for ANSI escape sequences
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
