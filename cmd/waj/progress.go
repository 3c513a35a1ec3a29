package main

import (
	"github.com/schollz/progressbar/v3"

	"github.com/wajproject/waj/internal/blob"
)

// barProgressSink adapts schollz/progressbar/v3 to blob.ProgressSink, the
// same way the teacher wraps a progress bar around an io.Reader in
// nodetools/block-dag.go.
type barProgressSink struct {
	bar *progressbar.ProgressBar
}

func newBarProgressSink(description string) *barProgressSink {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
	)
	return &barProgressSink{bar: bar}
}

func (s *barProgressSink) CachedData(size int64) { s.bar.Add64(size) }
func (s *barProgressSink) NewContent(size int64) { s.bar.Add64(size) }

var _ blob.ProgressSink = (*barProgressSink)(nil)
