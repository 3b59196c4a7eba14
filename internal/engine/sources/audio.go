package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// AudioFile is a downloaded audio track in a private scratch directory.
// Cleanup removes the directory and is safe to call more than once.
type AudioFile struct {
	Path    string
	dir     string
	cleaned bool
}

// Cleanup deletes the scratch directory.
func (a *AudioFile) Cleanup() {
	if a == nil || a.cleaned {
		return
	}
	a.cleaned = true
	if err := os.RemoveAll(a.dir); err != nil {
		slog.Warn("audio: scratch cleanup failed", slog.String("dir", a.dir), slog.Any("error", err))
	}
}

// YTDLP downloads best-available audio with yt-dlp and transcodes it to mp3.
type YTDLP struct {
	binary  string
	tempDir string
	runner  CommandRunner
}

// NewYTDLP creates a downloader. An empty tempDir uses the OS default.
func NewYTDLP(binary, tempDir string, runner CommandRunner) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &YTDLP{binary: binary, tempDir: tempDir, runner: runner}
}

// Download fetches the audio of videoURL into a fresh scratch directory.
// On error nothing is left on disk.
func (d *YTDLP) Download(ctx context.Context, videoURL string) (*AudioFile, error) {
	engine.IncrAudioDownloads()

	dir, err := os.MkdirTemp(d.tempDir, "ytlearn-audio-")
	if err != nil {
		return nil, fmt.Errorf("audio: scratch dir: %w", err)
	}
	af := &AudioFile{dir: dir}

	name := uuid.NewString()
	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "bestaudio/best",
		"-x", "--audio-format", "mp3", "--audio-quality", "5",
		"-o", filepath.Join(dir, name+".%(ext)s"),
		videoURL,
	}
	out, err := d.runner.Run(ctx, d.binary, args...)
	if err != nil {
		af.Cleanup()
		return nil, fmt.Errorf("audio: %s failed: %w: %s", d.binary, err, engine.Truncate(lastLine(out), 300))
	}

	path := filepath.Join(dir, name+".mp3")
	if _, err := os.Stat(path); err != nil {
		// yt-dlp may keep the source container when transcoding is skipped
		matches, _ := filepath.Glob(filepath.Join(dir, name+".*"))
		if len(matches) == 0 {
			af.Cleanup()
			return nil, errors.New("audio: downloader produced no file")
		}
		path = matches[0]
	}
	af.Path = path
	slog.Info("audio: downloaded", slog.String("url", videoURL), slog.String("file", filepath.Base(path)))
	return af, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
