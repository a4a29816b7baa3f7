package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/storage"
)

// durationPattern matches the Duration line ffmpeg prints on stderr for
// any readable container.
var durationPattern = regexp.MustCompile(`Duration:\s*(\d{2}):(\d{2}):(\d{2}\.\d+)`)

// Chunk is one bounded-length slice of canonical audio stored under its
// own key.
type Chunk struct {
	Key         string
	StartOffset time.Duration
}

// ChunkResult is the output of NormalizeAndChunk.
type ChunkResult struct {
	Chunks   []Chunk
	Duration time.Duration
}

// Normalizer wraps the ffmpeg binary as a subprocess to probe duration
// and transcode arbitrary input into canonical mono 16kHz PCM WAV.
// Every scratch file it creates is removed on all exit paths.
type Normalizer struct {
	storage storage.ObjectStorage
	cfg     config.MediaConfig
	logger  *zap.Logger
}

func NewNormalizer(store storage.ObjectStorage, cfg config.MediaConfig, logger *zap.Logger) *Normalizer {
	return &Normalizer{storage: store, cfg: cfg, logger: logger}
}

// Probe extracts the media duration for the given storage key or local
// path. The tool runs in metadata-only mode, so a non-zero exit is
// tolerated as long as a duration line is present in the combined
// output. No duration line yields zero; callers must treat zero as
// unknown, not silent.
func (n *Normalizer) Probe(ctx context.Context, key string) (time.Duration, error) {
	localPath, cleanup, err := n.localInput(ctx, key)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	output, _, err := n.runFFmpeg(ctx, []string{"-hide_banner", "-i", localPath}, false)
	if err != nil {
		return 0, err
	}
	return ParseDuration(output), nil
}

// Normalize transcodes the input into canonical audio and uploads it
// under a key derived from the source key. Non-zero exit here, unlike
// the probe path, is always a hard failure.
func (n *Normalizer) Normalize(ctx context.Context, key string) (string, time.Duration, error) {
	localPath, cleanup, err := n.localInput(ctx, key)
	if err != nil {
		return "", 0, err
	}
	defer cleanup()

	outPath := filepath.Join(n.cfg.ScratchDir, "output_"+uuid.New().String()+".wav")
	defer n.removeScratch(outPath)

	args := []string{
		"-y", "-i", localPath,
		"-vn", "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le",
		outPath,
	}
	output, _, err := n.runFFmpeg(ctx, args, true)
	if err != nil {
		return "", 0, err
	}
	duration := ParseDuration(output)

	audioKey := DerivedAudioKey(key)
	if err := n.uploadFile(ctx, outPath, audioKey, "audio/wav"); err != nil {
		return "", 0, err
	}

	n.logger.Info("normalized media",
		zap.String("source_key", key),
		zap.String("audio_key", audioKey),
		zap.Float64("duration_seconds", duration.Seconds()))

	return audioKey, duration, nil
}

// NormalizeAndChunk converts the input to canonical audio and, when it
// exceeds threshold, splits it into chunkDuration pieces via the segment
// muxer. Short inputs come back as a single chunk at offset zero.
func (n *Normalizer) NormalizeAndChunk(ctx context.Context, key string, chunkDuration, threshold time.Duration) (*ChunkResult, error) {
	localPath, cleanup, err := n.localInput(ctx, key)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	probeOut, _, err := n.runFFmpeg(ctx, []string{"-hide_banner", "-i", localPath}, false)
	if err != nil {
		return nil, err
	}
	duration := ParseDuration(probeOut)

	if duration <= threshold {
		audioKey, d, err := n.Normalize(ctx, key)
		if err != nil {
			return nil, err
		}
		if d == 0 {
			d = duration
		}
		return &ChunkResult{
			Chunks:   []Chunk{{Key: audioKey, StartOffset: 0}},
			Duration: d,
		}, nil
	}

	chunkDir := filepath.Join(n.cfg.ScratchDir, "chunks_"+uuid.New().String())
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(chunkDir); err != nil {
			n.logger.Warn("failed to remove chunk dir", zap.String("dir", chunkDir), zap.Error(err))
		}
	}()

	pattern := filepath.Join(chunkDir, "chunk_%03d.wav")
	args := []string{
		"-y", "-i", localPath,
		"-vn", "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le",
		"-f", "segment", "-segment_time", strconv.Itoa(int(chunkDuration.Seconds())),
		pattern,
	}
	if _, _, err := n.runFFmpeg(ctx, args, true); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(chunkDir, "chunk_*.wav"))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("segmenting %s produced no chunks", key)
	}

	base := strings.TrimSuffix(key, filepath.Ext(key))
	chunks := make([]Chunk, 0, len(files))
	for i, file := range files {
		chunkKey := fmt.Sprintf("%s_chunk_%03d.wav", base, i)
		if err := n.uploadFile(ctx, file, chunkKey, "audio/wav"); err != nil {
			return nil, err
		}
		chunks = append(chunks, Chunk{
			Key:         chunkKey,
			StartOffset: time.Duration(i) * chunkDuration,
		})
	}

	n.logger.Info("split media into chunks",
		zap.String("source_key", key),
		zap.Int("chunks", len(chunks)),
		zap.Float64("duration_seconds", duration.Seconds()))

	return &ChunkResult{Chunks: chunks, Duration: duration}, nil
}

// CleanupChunks deletes chunk objects after transcription. Failures are
// logged and never escalate.
func (n *Normalizer) CleanupChunks(chunks []Chunk) {
	for _, c := range chunks {
		if err := n.storage.Delete(context.Background(), c.Key); err != nil {
			n.logger.Warn("failed to delete chunk", zap.String("key", c.Key), zap.Error(err))
		}
	}
}

// runFFmpeg executes the tool under the configured hard timeout,
// returning the combined output. With enforceExit set, a non-zero exit
// code is an error; the probe path passes false because ffmpeg exits
// non-zero when no output file is requested.
func (n *Normalizer) runFFmpeg(ctx context.Context, args []string, enforceExit bool) (string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, n.cfg.ConvertTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, n.cfg.FFmpegPath, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	// Kill the whole process tree on timeout, not just the parent.
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", -1, apperr.Timeout(
			fmt.Sprintf("ffmpeg exceeded %s timeout", n.cfg.ConvertTimeout), runCtx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if !enforceExit {
				return combined.String(), exitErr.ExitCode(), nil
			}
			return "", exitErr.ExitCode(), fmt.Errorf(
				"ffmpeg exited with code %d: %s", exitErr.ExitCode(), tail(combined.String(), 500))
		}
		return "", -1, fmt.Errorf("run ffmpeg: %w", err)
	}
	return combined.String(), 0, nil
}

// localInput resolves a storage key (or an already-local path) to a
// readable local file. The returned cleanup removes the scratch copy
// when one was made and is safe to call on every exit path.
func (n *Normalizer) localInput(ctx context.Context, key string) (string, func(), error) {
	if _, err := os.Stat(key); err == nil {
		return key, func() {}, nil
	}

	tempPath := filepath.Join(n.cfg.ScratchDir, "input_"+uuid.New().String()+filepath.Ext(key))
	src, err := n.storage.GetStream(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer src.Close()

	out, err := os.Create(tempPath)
	if err != nil {
		return "", nil, fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := out.ReadFrom(src); err != nil {
		out.Close()
		n.removeScratch(tempPath)
		return "", nil, fmt.Errorf("download %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		n.removeScratch(tempPath)
		return "", nil, fmt.Errorf("write scratch file: %w", err)
	}
	return tempPath, func() { n.removeScratch(tempPath) }, nil
}

func (n *Normalizer) uploadFile(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return n.storage.Put(ctx, key, f, info.Size(), contentType)
}

func (n *Normalizer) removeScratch(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		n.logger.Warn("failed to remove scratch file", zap.String("path", path), zap.Error(err))
	}
}

// DerivedAudioKey returns the canonical-audio key for a source key.
func DerivedAudioKey(sourceKey string) string {
	return strings.TrimSuffix(sourceKey, filepath.Ext(sourceKey)) + "_audio.wav"
}

// ParseDuration extracts the duration from ffmpeg's combined output,
// returning zero when no duration line matches.
func ParseDuration(output string) time.Duration {
	m := durationPattern.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
