package main

import (
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/particles"
)

// printSummary writes the run statistics with grouped digits.
func printSummary(w io.Writer, backendName string, count int, st particles.Stats, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	fps := 0.0
	if s := elapsed.Seconds(); s > 0 {
		fps = float64(st.Frames) / s
	}
	p.Fprintf(w, "%s: %d particles, %d frames in %s (%.1f fps)\n",
		backendName, count, st.Frames, elapsed.Round(time.Millisecond).String(), fps)
	p.Fprintf(w, "compute ticks %d, dropped %d, stale presents %d, swapchain rebuilds %d\n",
		st.ComputeTicks, st.Dropped, st.StalePresents, st.Rebuilds)
	p.Fprintf(w, "waits: image %d, compute %d\n", st.ImageWaits, st.ComputeWaits)
}
