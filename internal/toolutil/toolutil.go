// Package toolutil provides helpers shared by the MCP tools and the CLI.
package toolutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/learn"
)

// Outcome splits err into the success flag and the uniform failure shape.
func Outcome(tool string, err error) (bool, *engine.Failure) {
	if err == nil {
		return true, nil
	}
	f := engine.FailureOf(err, time.Now())
	slog.Warn("tool failed", slog.String("tool", tool),
		slog.String("reason", string(f.Reason)), slog.Any("error", err))
	return false, &f
}

// RequireInput rejects blank input with INVALID_INPUT.
func RequireInput(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return engine.NewError(engine.ReasonInvalidInput, name+" is required", nil)
	}
	return nil
}

// StripSegments drops caption timing from a transcript unless keep is set.
func StripSegments(tr *learn.Transcript, keep bool) *learn.Transcript {
	if tr == nil || keep || tr.Segments == nil {
		return tr
	}
	out := *tr
	out.Segments = nil
	return &out
}

// WriteJSON pretty-prints v.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
