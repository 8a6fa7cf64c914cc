// Package library provides a photo library backed by a directory tree.
//
// Dir implements both reveal.Library and reveal.ImageSource. Every image
// file under the root is an asset; its modification time stands in for the
// creation date. Requests deliver a coarse nearest-neighbour preview first
// and a Catmull-Rom resampled final image second, so callers see the same
// degraded-then-final sequence a platform photo service produces.
//
// Supported formats: JPEG, PNG, GIF, WebP, BMP, TIFF.
package library
