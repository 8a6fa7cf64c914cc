// Package reveal is the preloading and interaction core of a photo reveal
// screen: touch anywhere and a random photo from the library appears under
// the finger, expands to full screen, can be pinch-zoomed and panned, and
// collapses back to where it came from.
//
// # Overview
//
// The core keeps a rolling buffer of decoded images so a reveal never
// waits on I/O:
//
//   - IndexSampler picks catalog indices without replacement and starts a
//     new epoch once most of the catalog has been shown.
//   - Preloader fetches batches of images on a background pool and merges
//     them into the buffer in halves. Take hands out one image and schedules
//     a refill when the buffer drops below the low-water mark.
//   - FetchGateway turns a multi-delivery image request into a single
//     final image, skipping degraded previews.
//   - FetchGuard tags direct fetches with a token so results that arrive
//     after the user has moved on are discarded.
//   - Viewer is the interaction state machine. It runs on a Loop, the
//     single goroutine that owns all interaction state.
//
// Session wires these together for a Library and an ImageSource.
//
// # Quick Start
//
//	s, err := reveal.NewSession(lib, src, reveal.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if _, err := s.Start(ctx); err != nil {
//	    return err
//	}
//
//	v := s.Viewer()
//	v.Reveal(reveal.Pt(120, 300)) // touch down
//	v.Release()                   // touch up before expansion cancels
//
// # Concurrency
//
// There are two contexts. Fetches and refills run on the background pool.
// Every result that touches interaction state is posted to the Loop and
// applied there. The buffer and the sampler are guarded by one mutex.
//
// # Coordinate System
//
// Points are in screen coordinates with the origin at the top-left corner.
// Zoom is a scale factor; pan offsets are measured from the screen center.
package reveal
