// Package slideshow assembles photo posts into a single video with a music
// track, using ffmpeg and ffprobe as subprocesses.
package slideshow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Sentinel errors for input validation. No subprocess is spawned when
// validation fails.
var (
	ErrNoPhotos     = errors.New("slideshow: no photos provided")
	ErrBadFrameTime = errors.New("slideshow: seconds per frame must be positive")
)

// padEpsilon absorbs sub-10ms duration mismatches so near-equal streams are
// not padded at all.
const padEpsilon = 1e-2

// Assembler merges photos and audio into one mp4 via ffmpeg.
type Assembler struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// New creates an Assembler that looks up ffmpeg and ffprobe on PATH.
func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		logger:  logger,
	}
}

// Assemble renders photos into a slideshow video backed by the music track.
// The output duration is max(len(photos)*secondsPerFrame, audio duration);
// the shorter stream is padded — the last frame is held for video, silence is
// appended for audio — so both end together.
func (a *Assembler) Assemble(ctx context.Context, photos [][]byte, music []byte, secondsPerFrame float64) ([]byte, error) {
	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}
	if secondsPerFrame <= 0 {
		return nil, ErrBadFrameTime
	}

	dir, err := os.MkdirTemp("", "tikrelay-slideshow-")
	if err != nil {
		return nil, fmt.Errorf("slideshow: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	for i, photo := range photos {
		name := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", i))
		if err := os.WriteFile(name, photo, 0o600); err != nil {
			return nil, fmt.Errorf("slideshow: write frame %d: %w", i, err)
		}
	}

	musicPath := filepath.Join(dir, "music.mp3")
	if err := os.WriteFile(musicPath, music, 0o600); err != nil {
		return nil, fmt.Errorf("slideshow: write music: %w", err)
	}

	audioDuration, err := a.probeDuration(ctx, musicPath)
	if err != nil {
		return nil, err
	}

	padVideo, padAudio := padDurations(len(photos), secondsPerFrame, audioDuration)
	outputPath := filepath.Join(dir, "slideshow.mp4")
	args := encodeArgs(dir, musicPath, outputPath, secondsPerFrame, padVideo, padAudio)

	a.logger.Debug("assembling slideshow",
		"photos", len(photos),
		"audio_duration", audioDuration,
		"pad_video", padVideo,
		"pad_audio", padAudio,
	)

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("slideshow: ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("slideshow: read output: %w", err)
	}
	return out, nil
}

// probeDuration returns the audio duration in seconds via ffprobe.
func (a *Assembler) probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("slideshow: ffprobe: %w: %s", err, lastLine(stderr.String()))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("slideshow: parse audio duration %q: %w", strings.TrimSpace(stdout.String()), err)
	}
	return duration, nil
}

// padDurations computes how much padding each stream needs for both to end
// at max(frameCount*secondsPerFrame, audioDuration). Differences below
// padEpsilon collapse to zero.
func padDurations(frameCount int, secondsPerFrame, audioDuration float64) (padVideo, padAudio float64) {
	framesDuration := float64(frameCount) * secondsPerFrame
	target := max(framesDuration, audioDuration)

	padVideo = target - framesDuration
	padAudio = target - audioDuration
	if padVideo < padEpsilon {
		padVideo = 0
	}
	if padAudio < padEpsilon {
		padAudio = 0
	}
	return padVideo, padAudio
}

// encodeArgs builds the ffmpeg argument list. Exactly one stream is padded;
// when both pads are zero the streams are mapped directly.
func encodeArgs(dir, musicPath, outputPath string, secondsPerFrame, padVideo, padAudio float64) []string {
	args := []string{
		"-y",
		"-start_number", "0",
		"-framerate", fmt.Sprintf("1/%g", secondsPerFrame),
		"-i", filepath.Join(dir, "frame_%04d.jpg"),
		"-i", musicPath,
	}

	switch {
	case padVideo > 0 && padAudio == 0:
		args = append(args,
			"-filter_complex", fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%g[v]", padVideo),
			"-map", "[v]",
			"-map", "1:a",
		)
	case padAudio > 0 && padVideo == 0:
		args = append(args,
			"-filter_complex", fmt.Sprintf("[1:a]apad=pad_dur=%g[a]", padAudio),
			"-map", "0:v",
			"-map", "[a]",
		)
	default:
		args = append(args,
			"-map", "0:v",
			"-map", "1:a",
		)
	}

	return append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-c:a", "aac",
		outputPath,
	)
}

// lastLine returns the last non-empty line of subprocess stderr, which is
// where ffmpeg puts the actionable message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
