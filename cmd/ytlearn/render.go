package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/learn"
)

func formatFailure(f engine.Failure) string {
	var b strings.Builder
	b.WriteString(string(f.Reason))
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.RetryAfter != nil {
		fmt.Fprintf(&b, " (retry in %s)", time.Duration(*f.RetryAfter)*time.Second)
	}
	return b.String()
}

func renderOutput(w io.Writer, out *learn.Output) {
	if tr := out.Transcript; tr != nil {
		fmt.Fprintf(w, "Content: %s (transcript from %s)\n", tr.ContentID, tr.Source)
	}
	r := out.Result
	if r == nil {
		return
	}
	if r.FromCache {
		fmt.Fprintln(w, "(served from cache)")
	}
	if r.Summary != "" {
		fmt.Fprintf(w, "\n## Summary\n\n%s\n", r.Summary)
	}
	if r.KeyPoints != "" {
		fmt.Fprintf(w, "\n## Key points\n\n%s\n", r.KeyPoints)
	}
	if len(r.Quiz) > 0 {
		fmt.Fprintf(w, "\n## Quiz (%d questions)\n", len(r.Quiz))
		for i, q := range r.Quiz {
			renderQuestion(w, i+1, q)
		}
		if r.QuizShort {
			fmt.Fprintf(w, "\nnote: only %d of %d questions could be generated\n", len(r.Quiz), learn.QuizSize)
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "\n%s failed: %s\n", f.Step, formatFailure(engine.Failure{
			Reason: f.Reason, Message: f.Message, RetryAfter: f.RetryAfter,
		}))
	}
}

func renderQuestion(w io.Writer, n int, q learn.QuizQuestion) {
	fmt.Fprintf(w, "\n%d. %s\n", n, q.Question)
	letters := make([]string, 0, len(q.Options))
	for l := range q.Options {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	for _, l := range letters {
		fmt.Fprintf(w, "   %s) %s\n", l, q.Options[l])
	}
	fmt.Fprintf(w, "   answer: %s. %s\n", q.CorrectAnswer, q.Explanation)
}

func renderUsage(w io.Writer, u learn.Usage, now time.Time) {
	fmt.Fprintf(w, "keys=%d daily_limit=%d remaining_today=%d\n", u.TotalKeys, u.DailyLimit, u.RemainingToday)
	for _, k := range u.Keys {
		marker := " "
		if k.Current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s key %d %s  today=%d remaining=%d total=%d\n",
			marker, k.Number, k.Key, k.RequestsToday, k.RemainingToday, k.TotalRequests)
	}
	fmt.Fprintf(w, "pipeline=%s last=%s\n", u.Pipeline.Status, u.Pipeline.LastOutcome)
	if cd := u.Pipeline.Cooldown; cd != nil {
		fmt.Fprintf(w, "quota cooldown until %s (%s left)\n",
			cd.ActiveUntil.Format(time.RFC3339), cd.ActiveUntil.Sub(now).Round(time.Second))
	}
}
