package learn

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// QuizSize is the number of questions a complete quiz has.
const QuizSize = 10

// NoExplanation replaces a missing explanation.
const NoExplanation = "No explanation provided."

// Quiz parse failures. All of them surface as MALFORMED_MODEL_OUTPUT.
var (
	ErrNoJSONArray     = errors.New("no JSON array in model output")
	ErrMalformedJSON   = errors.New("quiz JSON unparseable after repair")
	ErrInvalidQuestion = errors.New("quiz question has invalid shape")
)

// QuizQuestion is one multiple-choice question with options A to D.
type QuizQuestion struct {
	Question      string            `json:"question" validate:"required"`
	Options       map[string]string `json:"options" validate:"len=4,dive,keys,oneof=A B C D,endkeys,required"`
	CorrectAnswer string            `json:"correct_answer" validate:"required,oneof=A B C D"`
	Explanation   string            `json:"explanation"`
}

var validate = validator.New()

// NormalizeQuiz turns raw model output into at most QuizSize validated questions.
//
// Fences are stripped, the outermost [...] span is cut out, invalid escapes are
// repaired and the result is parsed; if parsing fails, whitespace is collapsed and
// parsing is retried once. Extra questions are dropped. A short quiz is returned
// as is. One malformed question rejects the whole batch.
func NormalizeQuiz(raw string) ([]QuizQuestion, error) {
	text := engine.StripFences(raw)

	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil, quizError(ErrNoJSONArray, engine.Preview(text, 80))
	}

	items, err := parseArray(text[start : end+1])
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, quizError(ErrNoJSONArray, "array is empty")
	}
	if len(items) > QuizSize {
		items = items[:QuizSize]
	}

	quiz := make([]QuizQuestion, 0, len(items))
	for i, item := range items {
		q, err := decodeQuestion(item)
		if err != nil {
			return nil, quizError(ErrInvalidQuestion, fmt.Sprintf("question %d: %v", i+1, err))
		}
		quiz = append(quiz, q)
	}

	if len(quiz) < QuizSize {
		engine.IncrQuizShort()
		slog.Warn("quiz: fewer questions than requested",
			slog.Int("got", len(quiz)), slog.Int("want", QuizSize))
	}
	return quiz, nil
}

// IsShortQuiz reports whether quiz has fewer than QuizSize questions.
func IsShortQuiz(quiz []QuizQuestion) bool { return len(quiz) < QuizSize }

func parseArray(span string) ([]json.RawMessage, error) {
	repaired := RepairEscapes(span)
	if repaired != span {
		engine.IncrQuizRepairs()
	}

	var items []json.RawMessage
	err := json.Unmarshal([]byte(repaired), &items)
	if err == nil {
		return items, nil
	}

	// raw newlines inside string values are the usual culprit
	engine.IncrQuizRepairs()
	if err2 := json.Unmarshal([]byte(engine.CollapseSpace(repaired)), &items); err2 != nil {
		return nil, quizError(ErrMalformedJSON, err2.Error())
	}
	return items, nil
}

func decodeQuestion(raw json.RawMessage) (QuizQuestion, error) {
	var q QuizQuestion
	if err := json.Unmarshal(raw, &q); err != nil {
		return q, err
	}
	q.Question = strings.TrimSpace(q.Question)
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	if _, ok := q.Options[q.CorrectAnswer]; !ok {
		return q, fmt.Errorf("correct_answer %q is not an option", q.CorrectAnswer)
	}
	if strings.TrimSpace(q.Explanation) == "" {
		q.Explanation = NoExplanation
	}
	return q, nil
}

// RepairEscapes keeps JSON-legal escapes and drops the backslash from any other,
// so \' becomes '. Valid JSON is returned unchanged.
func RepairEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		next := s[i+1]
		if strings.IndexByte(`"\/bfnrtu`, next) >= 0 {
			sb.WriteByte(c)
		}
		sb.WriteByte(next)
		i++
	}
	return sb.String()
}

func quizError(kind error, detail string) error {
	return engine.NewError(engine.ReasonMalformedModelOutput,
		"could not build a quiz from the model response",
		fmt.Errorf("%w: %s", kind, detail))
}
