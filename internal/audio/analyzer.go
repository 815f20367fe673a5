package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const defaultTimeout = 30 * time.Second

// Result is the technical description of one audio file.
type Result struct {
	Format     string  `json:"format"`
	Codec      string  `json:"codec"`
	Bitrate    int     `json:"bitrate"`     // kbit/s
	SampleRate int     `json:"sample_rate"` // Hz
	Duration   float64 `json:"duration"`    // seconds
	Quality    string  `json:"quality"`
}

// Analyzer inspects an audio file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*Result, error)
}

// FFProbe runs the ffprobe binary and parses its JSON report.
type FFProbe struct {
	Path    string
	Timeout time.Duration
}

// NewFFProbe creates an analyzer for the given binary. An empty path uses "ffprobe" from PATH.
func NewFFProbe(path string, timeout time.Duration) *FFProbe {
	if path == "" {
		path = "ffprobe"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FFProbe{Path: path, Timeout: timeout}
}

// probeOutput is the subset of `ffprobe -show_format -show_streams` used here.
type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Analyze probes path, bounded by the analyzer timeout.
func (p *FFProbe) Analyze(ctx context.Context, path string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.Path, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: ffprobe %s", shared.ErrTimeout, path)
		}
		return nil, fmt.Errorf("%w: ffprobe %s: %v: %s", shared.ErrCommandFailed, path, err, strings.TrimSpace(stderr.String()))
	}

	return Parse(out.Bytes())
}

// Parse builds a [Result] from ffprobe JSON output.
func Parse(data []byte) (*Result, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}

	r := &Result{Format: firstName(probe.Format.FormatName)}
	r.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	bitrate := atoi(probe.Format.BitRate)

	found := false
	for _, s := range probe.Streams {
		if s.CodecType != "audio" {
			continue
		}
		found = true
		r.Codec = s.CodecName
		r.SampleRate = atoi(s.SampleRate)
		if b := atoi(s.BitRate); b > 0 {
			bitrate = b
		}
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: no audio streams found in file", shared.ErrInvalidInput)
	}

	r.Bitrate = bitrate / 1000
	r.Quality = Label(r.Codec, r.Bitrate)
	return r, nil
}

// Label classifies a codec and bitrate (kbit/s) into one of the models.Quality* labels.
func Label(codec string, kbps int) string {
	codec = strings.ToLower(codec)
	switch {
	case codec == "flac" || codec == "alac" || codec == "wavpack" || codec == "ape" || strings.HasPrefix(codec, "pcm_"):
		return models.QualityLossless
	case kbps >= 256:
		return models.QualityHigh
	case kbps >= 160:
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}

// firstName picks the first entry of a comma separated demuxer list such as "mov,mp4,m4a".
func firstName(s string) string {
	name, _, _ := strings.Cut(s, ",")
	return name
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
