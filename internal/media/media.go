// Package media defines the transient payload types shared between the
// source, workflow, and assembler. Payloads live only for the duration of
// one request and are never persisted.
package media

import "errors"

// ErrNoMedia indicates a link resolved to neither a video nor photos.
var ErrNoMedia = errors.New("media: no video or photos found")

// Result is what acquisition produced for one link: either a single video,
// or a set of photos with an optional music track.
type Result struct {
	Video  []byte
	Photos [][]byte
	Music  []byte
}

// HasVideo reports whether the result carries a video payload.
func (r *Result) HasVideo() bool {
	return r != nil && len(r.Video) > 0
}

// HasPhotos reports whether the result carries at least one photo.
func (r *Result) HasPhotos() bool {
	return r != nil && len(r.Photos) > 0
}

// HasMusic reports whether the result carries a music track.
func (r *Result) HasMusic() bool {
	return r != nil && len(r.Music) > 0
}

// Empty reports whether acquisition found nothing usable.
func (r *Result) Empty() bool {
	return !r.HasVideo() && !r.HasPhotos()
}
