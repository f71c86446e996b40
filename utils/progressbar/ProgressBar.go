// Package progressbar renders a single-line training progress display.
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const width = 30

// Bar tracks progress through a frame budget and renders it in place
// with a carriage return, together with the recent frame rate.
type Bar struct {
	mu    sync.Mutex
	w     io.Writer
	total int64

	start      time.Time
	lastTime   time.Time
	lastFrames int64
}

// New creates a bar over a total frame budget
func New(w io.Writer, total int64) *Bar {
	now := time.Now()
	return &Bar{w: w, total: total, start: now, lastTime: now}
}

// Set renders the bar at the given frame count
func (b *Bar) Set(frames int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frames > b.total {
		frames = b.total
	}

	fps := 0.0
	if dt := time.Since(b.lastTime).Seconds(); dt > 0 {
		fps = float64(frames-b.lastFrames) / dt
	}
	b.lastTime = time.Now()
	b.lastFrames = frames

	filled := int(float64(width) * float64(frames) / float64(b.total))
	fmt.Fprintf(b.w, "\r[%s%s] %d/%d frames (%.0f fps)",
		strings.Repeat("=", filled),
		strings.Repeat(" ", width-filled),
		frames, b.total, fps)
}

// Finish completes the line
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := time.Since(b.start).Round(time.Second)
	fmt.Fprintf(b.w, "\ndone in %v\n", elapsed)
}
