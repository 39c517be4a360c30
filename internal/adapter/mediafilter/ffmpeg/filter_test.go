package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/port"
)

type call struct {
	name string
	args []string
}

type stubRunner struct {
	calls  []call
	stdout string
	err    error
}

func (s *stubRunner) Runner(_ context.Context, name string, args []string, stdout io.Writer) error {
	s.calls = append(s.calls, call{name: name, args: args})
	if s.stdout != "" {
		_, _ = io.WriteString(stdout, s.stdout)
	}
	return s.err
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "valid path", path: "/tmp/video.mp4"},
		{name: "valid path with spaces", path: "/tmp/my video.mp4"},
		{name: "valid relative path", path: "video.mp4"},
		{name: "empty path", path: "", wantErr: ErrEmptyPath},
		{name: "null byte at start", path: "\x00/tmp/video.mp4", wantErr: ErrInvalidPath},
		{name: "null byte in middle", path: "/tmp/\x00video.mp4", wantErr: ErrInvalidPath},
		{name: "null byte at end", path: "/tmp/video.mp4\x00", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFilter_PathValidation(t *testing.T) {
	stub := &stubRunner{}
	f := NewFilter("", "").WithCommandRunner(stub.Runner)
	ctx := context.Background()

	_, err := f.Probe(ctx, "")
	assert.ErrorContains(t, err, "invalid input path")

	err = f.ExtractAudio(ctx, "/tmp/in.mp4", "/tmp/\x00out.wav")
	assert.ErrorContains(t, err, "invalid output path")

	err = f.Burn(ctx, port.BurnRequest{InputPath: "/tmp/in.mp4", OutputPath: "/tmp/out.mp4"}, nil)
	assert.ErrorContains(t, err, "invalid filter script path")

	assert.Empty(t, stub.calls)
}

func TestFilter_Probe(t *testing.T) {
	stub := &stubRunner{stdout: `{
		"format": {"format_name": "mov,mp4", "duration": "12.5"},
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2}
		]
	}`}
	f := NewFilter("ffmpeg", "/usr/bin/ffprobe").WithCommandRunner(stub.Runner)

	res, err := f.Probe(context.Background(), "/tmp/in.mp4")
	require.NoError(t, err)
	assert.Equal(t, 12.5, res.DurationSeconds())
	w, h := res.Dimensions()
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1920, h)
	require.NotNil(t, res.AudioStream())

	require.Len(t, stub.calls, 1)
	assert.Equal(t, "/usr/bin/ffprobe", stub.calls[0].name)
	assert.Equal(t, "/tmp/in.mp4", stub.calls[0].args[len(stub.calls[0].args)-1])
}

func TestFilter_ProbeBadJSON(t *testing.T) {
	stub := &stubRunner{stdout: "not json"}
	_, err := NewFilter("", "").WithCommandRunner(stub.Runner).Probe(context.Background(), "/tmp/in.mp4")
	assert.ErrorContains(t, err, "failed to parse ffprobe output")
}

func TestFilter_ExtractAudioArgs(t *testing.T) {
	stub := &stubRunner{}
	err := NewFilter("", "").WithCommandRunner(stub.Runner).ExtractAudio(context.Background(), "/tmp/in.mp4", "/tmp/a.wav")
	require.NoError(t, err)

	args := strings.Join(stub.calls[0].args, " ")
	assert.Contains(t, args, "-ac 1 -ar 16000 -c:a pcm_s16le")
	assert.True(t, strings.HasSuffix(args, "-y /tmp/a.wav"))
}

func TestBurnArgs(t *testing.T) {
	req := port.BurnRequest{
		InputPath:        "/in.mp4",
		OutputPath:       "/out.mp4",
		FilterScriptPath: "/tmp/captions.filter",
		Encoding:         port.Encoding{VideoBitrate: "2500k", CRF: 23, Preset: "medium"},
		CopyAudio:        true,
	}
	args := strings.Join(burnArgs(req), " ")
	assert.Contains(t, args, "-filter_script:v /tmp/captions.filter")
	assert.Contains(t, args, "-crf 23 -preset medium -maxrate 2500k")
	assert.Contains(t, args, "-c:a copy")
	assert.Contains(t, args, "-progress pipe:1")

	req.CopyAudio = false
	args = strings.Join(burnArgs(req), " ")
	assert.Contains(t, args, "-an")
	assert.NotContains(t, args, "-c:a copy")
}

func TestFilter_BurnProgress(t *testing.T) {
	stub := &stubRunner{stdout: "frame=10\nout_time_us=1000000\nspeed=1.5x\nprogress=continue\n" +
		"frame=40\nout_time_us=4000000\nspeed=1.6x\nprogress=continue\n" +
		"frame=50\nout_time_us=4100000\nprogress=end"}
	f := NewFilter("", "").WithCommandRunner(stub.Runner)

	var ticks []port.BurnProgress
	err := f.Burn(context.Background(), port.BurnRequest{
		InputPath: "/in.mp4", OutputPath: "/out.mp4", FilterScriptPath: "/s.filter", DurationSeconds: 4,
	}, func(p port.BurnProgress) { ticks = append(ticks, p) })
	require.NoError(t, err)

	require.Len(t, ticks, 3)
	assert.Equal(t, 25.0, ticks[0].Percentage)
	assert.Equal(t, int64(10), ticks[0].Frame)
	assert.Equal(t, "1.5x", ticks[0].Speed)
	assert.Equal(t, 100.0, ticks[1].Percentage)
	assert.Equal(t, 100.0, ticks[2].Percentage)
}

func TestFilter_BurnFailureIsTransient(t *testing.T) {
	stub := &stubRunner{err: errors.New("exit status 1: Conversion failed!")}
	err := NewFilter("", "").WithCommandRunner(stub.Runner).Burn(context.Background(), port.BurnRequest{
		InputPath: "/in.mp4", OutputPath: "/out.mp4", FilterScriptPath: "/s.filter",
	}, nil)
	assert.True(t, domain.IsTransient(err))
	assert.ErrorContains(t, err, "burn captions")
}

func TestFilter_MissingBinaryIsFatal(t *testing.T) {
	stub := &stubRunner{err: &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}}
	err := NewFilter("", "").WithCommandRunner(stub.Runner).ExtractAudio(context.Background(), "/in.mp4", "/a.wav")
	assert.False(t, domain.IsTransient(err))
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestFilter_CancelledReturnsCause(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(domain.ErrTimeout)
	stub := &stubRunner{err: errors.New("signal: killed")}

	err := NewFilter("", "").WithCommandRunner(stub.Runner).ExtractAudio(ctx, "/in.mp4", "/a.wav")
	assert.ErrorIs(t, err, domain.ErrTimeout)
}
