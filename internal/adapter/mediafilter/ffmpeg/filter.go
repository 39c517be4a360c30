package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/port"
)

var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("path contains null byte")
)

// stderrTail bounds how much ffmpeg stderr is kept for error messages.
const stderrTail = 2048

// CommandRunner runs name with args, streaming stdout to the writer.
type CommandRunner func(ctx context.Context, name string, args []string, stdout io.Writer) error

type Filter struct {
	ffmpeg  string
	ffprobe string
	run     CommandRunner
}

func NewFilter(ffmpegPath, ffprobePath string) *Filter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Filter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, run: defaultRunner}
}

// WithCommandRunner replaces process execution, for tests.
func (f *Filter) WithCommandRunner(r CommandRunner) *Filter {
	f.run = r
	return f
}

func validatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(p, 0) {
		return ErrInvalidPath
	}
	return nil
}

func (f *Filter) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	var out bytes.Buffer
	if err := f.run(ctx, f.ffprobe, args, &out); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe domain.ProbeResult
	if err := json.Unmarshal(out.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &probe, nil
}

// ExtractAudio writes a 16 kHz mono PCM WAV for speech-to-text.
func (f *Filter) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	if err := validatePath(inputPath); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if err := validatePath(outputPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	args := []string{
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-y", outputPath,
	}
	if err := f.run(ctx, f.ffmpeg, args, io.Discard); err != nil {
		return f.classify(ctx, "extract audio", err)
	}
	return nil
}

func burnArgs(req port.BurnRequest) []string {
	args := []string{
		"-nostdin",
		"-i", req.InputPath,
		"-filter_script:v", req.FilterScriptPath,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(req.Encoding.CRF),
		"-preset", req.Encoding.Preset,
	}
	if req.Encoding.VideoBitrate != "" {
		args = append(args, "-maxrate", req.Encoding.VideoBitrate, "-bufsize", req.Encoding.VideoBitrate)
	}
	if req.CopyAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-y", req.OutputPath,
	)
	return args
}

func (f *Filter) Burn(ctx context.Context, req port.BurnRequest, onProgress func(port.BurnProgress)) error {
	for name, p := range map[string]string{"input": req.InputPath, "output": req.OutputPath, "filter script": req.FilterScriptPath} {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("invalid %s path: %w", name, err)
		}
	}
	pw := newProgressWriter(req.DurationSeconds, onProgress)
	err := f.run(ctx, f.ffmpeg, burnArgs(req), pw)
	pw.flush()
	if err != nil {
		return f.classify(ctx, "burn captions", err)
	}
	return nil
}

// classify marks process crashes as transient. Cancellation and a missing
// binary are not worth retrying.
func (f *Filter) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.Transient(fmt.Errorf("%s: %w", op, err))
}

func defaultRunner(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		if msg := strings.TrimSpace(string(tail)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// progressWriter parses ffmpeg's -progress key=value blocks. Each block ends
// with a progress=continue or progress=end line.
type progressWriter struct {
	duration float64
	emit     func(port.BurnProgress)
	buf      []byte
	cur      port.BurnProgress
}

func newProgressWriter(duration float64, emit func(port.BurnProgress)) *progressWriter {
	return &progressWriter{duration: duration, emit: emit}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.line(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *progressWriter) flush() {
	if len(w.buf) > 0 {
		w.line(string(w.buf))
		w.buf = nil
	}
}

func (w *progressWriter) line(raw string) {
	key, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return
	}
	value = strings.TrimSpace(value)
	switch key {
	case "frame":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			w.cur.Frame = n
		}
	case "out_time_us", "out_time_ms":
		// both keys carry microseconds
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			w.cur.OutTimeSeconds = float64(n) / 1e6
		}
	case "speed":
		w.cur.Speed = value
	case "progress":
		if w.duration > 0 {
			w.cur.Percentage = domain.Clamp(w.cur.OutTimeSeconds/w.duration*100, 0, 100)
		}
		if value == "end" {
			w.cur.Percentage = 100
		}
		if w.emit != nil {
			w.emit(w.cur)
		}
	}
}

var _ port.MediaFilter = (*Filter)(nil)
