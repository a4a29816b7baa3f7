package transcribe

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// chunkOutput pairs one chunk's provider result with its position in
// the original audio.
type chunkOutput struct {
	startOffset float64
	result      *Result
}

// mergeChunks combines per-chunk results into one transcript. Segment
// times are shifted by their chunk's start offset, ordered
// chronologically, and clamped so no segment starts before the previous
// one ends. Indices are reassigned to stay continuous across chunk
// boundaries. The detected language of the first chunk wins.
func mergeChunks(outputs []chunkOutput) *Result {
	if len(outputs) == 0 {
		return &Result{}
	}

	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].startOffset < outputs[j].startOffset
	})

	shifted := lo.FlatMap(outputs, func(o chunkOutput, _ int) []model.Segment {
		segs := make([]model.Segment, 0, len(o.result.Segments))
		for _, s := range o.result.Segments {
			s.StartSeconds += o.startOffset
			s.EndSeconds += o.startOffset
			segs = append(segs, s)
		}
		return segs
	})

	sort.SliceStable(shifted, func(i, j int) bool {
		return shifted[i].StartSeconds < shifted[j].StartSeconds
	})

	// Chunk boundaries can produce a trailing segment whose reported end
	// spills past the next chunk's first segment. Clamp starts forward so
	// the timeline never runs backwards.
	prevEnd := 0.0
	for i := range shifted {
		if shifted[i].StartSeconds < prevEnd {
			shifted[i].StartSeconds = prevEnd
		}
		if shifted[i].EndSeconds < shifted[i].StartSeconds {
			shifted[i].EndSeconds = shifted[i].StartSeconds
		}
		shifted[i].Index = i
		prevEnd = shifted[i].EndSeconds
	}

	texts := lo.Map(outputs, func(o chunkOutput, _ int) string {
		return strings.TrimSpace(o.result.Text)
	})

	return &Result{
		Text:             strings.Join(lo.Compact(texts), " "),
		DetectedLanguage: outputs[0].result.DetectedLanguage,
		Segments:         shifted,
	}
}
