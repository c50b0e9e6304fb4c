package transcription

import (
	"context"
	"math"
	"sort"
	"strings"

	"mediadesk/internal/protocol"
	"mediadesk/internal/textutil"
)

// window is a slice of the input plus the absolute time range whose segments
// it owns.
type window struct {
	from, to         int
	ownFrom, ownUpTo float64
}

// planWindows splits n samples at rate into chunk-sized windows advancing by
// chunk - 2*stride. Owned regions are contiguous and cover [0, +Inf).
func planWindows(n, rate int, params DecodeParams) []window {
	chunk := int(params.ChunkSeconds * float64(rate))
	stride := int(params.StrideSeconds * float64(rate))
	step := chunk - 2*stride
	if chunk <= 0 || step <= 0 || n <= chunk {
		return []window{{from: 0, to: n, ownFrom: 0, ownUpTo: math.Inf(1)}}
	}

	var out []window
	for start := 0; ; start += step {
		w := window{
			from:    start,
			to:      min(start+chunk, n),
			ownFrom: float64(start+stride) / float64(rate),
			ownUpTo: float64(start+stride+step) / float64(rate),
		}
		if start == 0 {
			w.ownFrom = 0
		}
		if start+chunk >= n {
			w.ownUpTo = math.Inf(1)
			out = append(out, w)
			return out
		}
		out = append(out, w)
	}
}

// windowSegment is a segment in absolute time tagged with the window that
// produced it.
type windowSegment struct {
	protocol.Segment
	window int
}

// recognizeWindows runs rec over every window and stitches the results.
func recognizeWindows(ctx context.Context, rec Recognizer, samples []float32, rate int, params DecodeParams) ([]protocol.Segment, error) {
	duration := float64(len(samples)) / float64(rate)
	windows := planWindows(len(samples), rate, params)
	var all []windowSegment
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments, err := rec.Recognize(ctx, samples[w.from:w.to], params)
		if err != nil {
			return nil, err
		}
		offset := float64(w.from) / float64(rate)
		for _, seg := range segments {
			start := seg.Start + offset
			if start < w.ownFrom || start >= w.ownUpTo {
				continue
			}
			all = append(all, windowSegment{
				Segment: protocol.Segment{Start: start, End: seg.End + offset, Text: seg.Text},
				window:  i,
			})
		}
	}
	return stitch(all, windows, params.StrideSeconds, duration), nil
}

// stitch orders segments, clamps them to the input duration and drops empty
// text. A segment is folded into its predecessor only when the two come from
// adjacent windows, both touch the stride-wide region around the seam between
// them, and their texts are near duplicates. Repeats inside one window are
// kept.
func stitch(segments []windowSegment, windows []window, stride, duration float64) []protocol.Segment {
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	out := make([]protocol.Segment, 0, len(segments))
	last := -1
	for _, ws := range segments {
		seg := ws.Segment
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		seg.Start = math.Max(0, math.Min(seg.Start, duration))
		seg.End = math.Max(seg.Start, math.Min(seg.End, duration))
		if n := len(out); n > 0 && ws.window == last+1 && ws.window < len(windows) {
			seam := windows[ws.window].ownFrom
			if touches(out[n-1], seam, stride) && touches(seg, seam, stride) &&
				textutil.NearDuplicate(out[n-1].Text, seg.Text, duplicateThreshold) {
				out[n-1].End = math.Max(out[n-1].End, seg.End)
				last = ws.window
				continue
			}
		}
		out = append(out, seg)
		last = ws.window
	}
	return out
}

// touches reports whether seg overlaps [seam-stride, seam+stride].
func touches(seg protocol.Segment, seam, stride float64) bool {
	return seg.End >= seam-stride && seg.Start <= seam+stride
}

// joinText concatenates segment texts into the plain transcript.
func joinText(segments []protocol.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}
