// Command revealdemo drives the reveal core against a directory of photos
// with a scripted sequence of gestures and prints a summary.
//
// Configuration comes from REVEAL_* environment variables; flags override
// them.
//
//	revealdemo -dir ~/Pictures -reveals 20
//	revealdemo -generate 30 -v
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/reveal"
	"github.com/gogpu/reveal/library"
)

func main() {
	cfg, err := reveal.ConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		dir      = flag.String("dir", "", "photo directory")
		generate = flag.Int("generate", 0, "generate this many photos in a temporary directory instead of -dir")
		reveals  = flag.Int("reveals", 12, "number of scripted reveals")
		seed     = flag.Uint64("seed", 1, "random seed for sampling and touch points")
		start    = flag.Int64("count", 0, "initial value of the reveal counter")
		lang     = flag.String("lang", "en", "language of the report")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.IntVar(&cfg.PreloadCount, "preload", cfg.PreloadCount, "images per refill batch")
	flag.IntVar(&cfg.LowWater, "low-water", cfg.LowWater, "buffer size that triggers a refill")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "background workers (0 = GOMAXPROCS)")
	flag.Float64Var(&cfg.ScreenWidth, "width", cfg.ScreenWidth, "screen width in points")
	flag.Float64Var(&cfg.ScreenHeight, "height", cfg.ScreenHeight, "screen height in points")
	flag.DurationVar(&cfg.ExpandDuration, "expand", cfg.ExpandDuration, "expansion animation length")
	flag.DurationVar(&cfg.CollapseDuration, "collapse", cfg.CollapseDuration, "collapse animation length")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	reveal.SetLogger(logger)

	root, cleanup, err := prepareRoot(*dir, *generate, *seed)
	if err != nil {
		log.Fatalf("Failed to prepare photos: %v", err)
	}
	defer cleanup()

	// log.Fatalf skips deferred calls.
	fatalf := func(format string, args ...any) {
		cleanup()
		log.Fatalf(format, args...)
	}

	if root == "" {
		flag.Usage()
		os.Exit(2)
	}

	counter := reveal.NewMemoryCounter(*start)
	lib := library.New(root)
	s, err := reveal.NewSession(lib, lib,
		reveal.WithConfig(cfg),
		reveal.WithRand(rand.New(rand.NewPCG(*seed, *seed))),
		reveal.WithCounter(counter),
	)
	if err != nil {
		fatalf("Failed to create session: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := s.Start(ctx)
	if err != nil {
		s.Close()
		fatalf("Library %s unavailable (%s): %v", root, status, err)
	}

	d := &director{v: s.Viewer(), cfg: cfg, rng: rand.New(rand.NewPCG(*seed, 7))}
	for i := range *reveals {
		d.step(i)
	}

	stats := s.Stats()
	s.Close()

	report(message.NewPrinter(language.Make(*lang)), stats, lib.CacheStats().Hits, counter.Value())
}

// prepareRoot returns the photo directory to use. With generate > 0 it
// writes that many photos into a new temporary directory, removed by the
// returned cleanup; on error nothing is left behind.
func prepareRoot(dir string, generate int, seed uint64) (string, func(), error) {
	if generate <= 0 {
		return dir, func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "revealdemo-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }
	if err := generatePhotos(tmp, generate, seed); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp, cleanup, nil
}

// director plays a fixed gesture script against a viewer.
type director struct {
	v   *reveal.Viewer
	cfg reveal.Config
	rng *rand.Rand
}

// step performs one reveal. Every fourth reveal is released before it
// expands; the others are zoomed, panned, reset and dismissed.
func (d *director) step(i int) {
	touch := reveal.Pt(d.rng.Float64()*d.cfg.ScreenWidth, d.rng.Float64()*d.cfg.ScreenHeight)
	d.v.Reveal(touch)

	st := d.v.State()
	if st.Phase != reveal.PhaseRevealing {
		slog.Warn("nothing revealed", "step", i)
		return
	}
	slog.Info("reveal", "step", i, "touch", touch, "origin", st.Origin, "buffered", st.Photo != nil)

	if i%4 == 3 {
		d.v.Release()
		d.wait(reveal.PhaseIdle)
		slog.Info("cancelled", "step", i)
		return
	}

	if !d.wait(reveal.PhaseExpanded) {
		return
	}

	d.v.BeginZoom()
	d.v.UpdateZoom(1 + d.rng.Float64()*2)
	d.v.EndZoom()

	d.v.BeginPan()
	d.v.UpdatePan(reveal.Pt(d.rng.Float64()*2000-1000, d.rng.Float64()*2000-1000))
	d.v.EndPan()

	st = d.v.State()
	slog.Info("gestures", "step", i, "zoom", fmt.Sprintf("%.2f", st.Zoom), "pan", st.Pan)

	d.v.Tap() // reset zoom
	d.v.Tap() // dismiss
	d.wait(reveal.PhaseIdle)
}

// wait polls the viewer until it reaches phase or a generous deadline
// passes.
func (d *director) wait(phase reveal.Phase) bool {
	deadline := time.Now().Add(d.cfg.ExpandDuration + d.cfg.CollapseDuration + 5*time.Second)
	for time.Now().Before(deadline) {
		if d.v.State().Phase == phase {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	slog.Warn("timed out", "phase", phase.String())
	return false
}

func report(p *message.Printer, st reveal.SessionStats, cacheHits uint64, count int64) {
	p.Printf("library:      %s\n", st.Status)
	p.Printf("reveals:      %d (%d from buffer, %d direct)\n", st.Viewer.Reveals, st.Viewer.Hits, st.Viewer.Fallbacks)
	p.Printf("expanded:     %d, cancelled: %d\n", st.Viewer.Expansions, st.Viewer.Cancels)
	p.Printf("stale drops:  %d\n", st.Viewer.StaleDrops)
	p.Printf("preload:      %s\n", st.Preload)
	p.Printf("decode cache: %d hits\n", cacheHits)
	p.Printf("pool:         %d executed on %d workers\n", st.Pool.Executed, st.Pool.Workers)
	p.Printf("counter:      %d (%s)\n", count, reveal.FormatCount(count))
}

// generatePhotos writes n gradient PNGs with distinct hues and spaced
// modification times.
func generatePhotos(dir string, n int, seed uint64) error {
	rng := rand.New(rand.NewPCG(seed, 11))
	now := time.Now()

	for i := range n {
		w, h := 160+rng.IntN(160), 160+rng.IntN(160)
		base := color.NRGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255}

		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := range h {
			shade := uint8(y * 255 / h)
			for x := range w {
				img.SetNRGBA(x, y, color.NRGBA{R: base.R ^ shade, G: base.G, B: base.B ^ uint8(x*255/w), A: 255})
			}
		}

		p := filepath.Join(dir, fmt.Sprintf("photo-%03d.png", i))
		if err := writePNG(p, img); err != nil {
			return err
		}
		mod := now.Add(-time.Duration(n-i) * time.Hour)
		if err := os.Chtimes(p, mod, mod); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(p string, img image.Image) error {
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
