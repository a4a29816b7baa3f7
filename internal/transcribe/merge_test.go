package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

func TestMergeChunksEmpty(t *testing.T) {
	merged := mergeChunks(nil)
	assert.Empty(t, merged.Text)
	assert.Empty(t, merged.Segments)
}

func TestMergeChunksSingle(t *testing.T) {
	merged := mergeChunks([]chunkOutput{{
		startOffset: 0,
		result: &Result{
			Text:             "hello world",
			DetectedLanguage: "en",
			Segments: []model.Segment{
				{Index: 0, Text: "hello", StartSeconds: 0, EndSeconds: 1.5},
				{Index: 1, Text: "world", StartSeconds: 1.5, EndSeconds: 3},
			},
		},
	}})

	assert.Equal(t, "hello world", merged.Text)
	assert.Equal(t, "en", merged.DetectedLanguage)
	require.Len(t, merged.Segments, 2)
	assert.Equal(t, 0, merged.Segments[0].Index)
	assert.Equal(t, 1, merged.Segments[1].Index)
}

func TestMergeChunksShiftsByOffset(t *testing.T) {
	merged := mergeChunks([]chunkOutput{
		{
			startOffset: 600,
			result: &Result{
				Text: "second chunk",
				Segments: []model.Segment{
					{Index: 0, Text: "second chunk", StartSeconds: 0, EndSeconds: 4},
				},
			},
		},
		{
			startOffset: 0,
			result: &Result{
				Text:             "first chunk",
				DetectedLanguage: "en",
				Segments: []model.Segment{
					{Index: 0, Text: "first chunk", StartSeconds: 0, EndSeconds: 5},
				},
			},
		},
	})

	assert.Equal(t, "first chunk second chunk", merged.Text)
	assert.Equal(t, "en", merged.DetectedLanguage)
	require.Len(t, merged.Segments, 2)
	assert.Equal(t, 600.0, merged.Segments[1].StartSeconds)
	assert.Equal(t, 604.0, merged.Segments[1].EndSeconds)
}

func TestMergeChunksClampsOverlap(t *testing.T) {
	// The first chunk's last segment spills past the second chunk's start.
	merged := mergeChunks([]chunkOutput{
		{
			startOffset: 0,
			result: &Result{
				Segments: []model.Segment{
					{Index: 0, Text: "tail", StartSeconds: 595, EndSeconds: 602},
				},
			},
		},
		{
			startOffset: 600,
			result: &Result{
				Segments: []model.Segment{
					{Index: 0, Text: "head", StartSeconds: 0.5, EndSeconds: 3},
				},
			},
		},
	})

	require.Len(t, merged.Segments, 2)
	first, second := merged.Segments[0], merged.Segments[1]
	assert.Equal(t, "tail", first.Text)
	assert.Equal(t, "head", second.Text)
	// 600.5 < 602, so the second segment is pushed forward to the first's end.
	assert.Equal(t, 602.0, second.StartSeconds)
	assert.GreaterOrEqual(t, second.EndSeconds, second.StartSeconds)
}

func TestMergeChunksReindexesContinuously(t *testing.T) {
	merged := mergeChunks([]chunkOutput{
		{
			startOffset: 0,
			result: &Result{Segments: []model.Segment{
				{Index: 0, StartSeconds: 0, EndSeconds: 2},
				{Index: 1, StartSeconds: 2, EndSeconds: 4},
			}},
		},
		{
			startOffset: 600,
			result: &Result{Segments: []model.Segment{
				{Index: 0, StartSeconds: 0, EndSeconds: 2},
				{Index: 1, StartSeconds: 2, EndSeconds: 4},
			}},
		},
	})

	require.Len(t, merged.Segments, 4)
	for i, seg := range merged.Segments {
		assert.Equal(t, i, seg.Index)
	}
}

func TestMergeChunksSkipsEmptyText(t *testing.T) {
	merged := mergeChunks([]chunkOutput{
		{startOffset: 0, result: &Result{Text: "speech"}},
		{startOffset: 600, result: &Result{Text: "   "}},
		{startOffset: 1200, result: &Result{Text: "more speech"}},
	})

	assert.Equal(t, "speech more speech", merged.Text)
}
