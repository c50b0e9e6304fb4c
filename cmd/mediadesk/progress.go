package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"mediadesk/internal/coordinator"
	"mediadesk/internal/engine"
	"mediadesk/internal/modelcache"
)

// progressView renders coordinator job states as terminal progress bars. On
// anything but a terminal it stays silent.
type progressView struct {
	out     io.Writer
	enabled bool

	mu   sync.Mutex
	bars map[engine.Kind]*jobBar
}

type jobBar struct {
	bar           *progressbar.ProgressBar
	indeterminate bool
}

func newProgressView(out io.Writer) *progressView {
	return &progressView{
		out:     out,
		enabled: isTerminal(out),
		bars:    make(map[engine.Kind]*jobBar, 2),
	}
}

// observe is a coordinator subscriber.
func (p *progressView) observe(s coordinator.JobState) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.bars[s.Engine]
	if !s.Busy() {
		if current != nil {
			_ = current.bar.Finish()
			delete(p.bars, s.Engine)
		}
		return
	}
	if current == nil || current.indeterminate != s.Indeterminate {
		if current != nil {
			_ = current.bar.Clear()
		}
		current = &jobBar{bar: p.newJobBar(s.Indeterminate), indeterminate: s.Indeterminate}
		p.bars[s.Engine] = current
	}
	current.bar.Describe(fmt.Sprintf("%-13s %s", s.Engine, s.Message))
	if s.Indeterminate {
		_ = current.bar.Add(1)
		return
	}
	_ = current.bar.Set(int(s.Progress))
}

func (p *progressView) newJobBar(indeterminate bool) *progressbar.ProgressBar {
	total := 100
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100 * time.Millisecond),
	}
	if indeterminate {
		total = -1
		opts = append(opts, progressbar.OptionSpinnerType(14))
	} else {
		opts = append(opts, progressbar.OptionShowCount())
	}
	return progressbar.NewOptions(total, opts...)
}

// downloadProgress returns a fetcher progress callback drawing a byte bar, or
// nil when out is not a terminal.
func downloadProgress(out io.Writer) (func(modelcache.Progress), func()) {
	if !isTerminal(out) {
		return nil, func() {}
	}
	var bar *progressbar.ProgressBar
	update := func(p modelcache.Progress) {
		if bar == nil {
			total := p.Total
			if total <= 0 {
				total = -1
			}
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription(p.File),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
			)
		}
		_ = bar.Set64(p.Downloaded)
	}
	done := func() {
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(out)
		}
	}
	return update, done
}
