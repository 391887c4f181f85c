package service

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sprite-ai/crev/internal/model"
)

// validate checks outgoing requests before they hit the network.
var validate = validator.New()

type assignmentJSON struct {
	Content  string `json:"content"`
	Language string `json:"language" validate:"required"`
}

type submissionJSON struct {
	Code string `json:"code" validate:"required"`
}

type reviewRequestJSON struct {
	Assignment assignmentJSON `json:"assignment"`
	Submission submissionJSON `json:"submission"`
}

type testcaseJSON struct {
	Name   string `json:"name" validate:"required"`
	Input  string `json:"input"`
	Expect string `json:"expect"`
}

type runRequestJSON struct {
	Assignment  assignmentJSON `json:"assignment"`
	Submission  submissionJSON `json:"submission"`
	Testcase    []testcaseJSON `json:"testcase" validate:"unique=Name,dive"`
	CPUTime     int            `json:"cputime,omitempty" validate:"gte=0"`
	MemoryLimit int            `json:"memorylimit,omitempty" validate:"gte=0"`
}

type rangeJSON struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type reviewItemJSON struct {
	Type          string     `json:"type"`
	Issue         string     `json:"issue"`
	FixSuggestion string     `json:"fix_suggestion"`
	Line          rangeJSON  `json:"line"`
	Column        *rangeJSON `json:"column,omitempty"`
	CodeSnippet   string     `json:"code_snippet,omitempty"`
}

type reviewResponseJSON struct {
	Summary     string           `json:"summary"`
	Detail      string           `json:"detail,omitempty"`
	ReviewItems []reviewItemJSON `json:"review_items"`
	Error       string           `json:"error,omitempty"`
}

type testcaseResultJSON struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	Input        string `json:"input"`
	Expect       string `json:"expect"`
	Actual       string `json:"actual"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type runResponseJSON struct {
	CompileError    string               `json:"compileError,omitempty"`
	ErrorMessage    string               `json:"errorMessage,omitempty"`
	Error           string               `json:"error,omitempty"`
	TestcaseResults []testcaseResultJSON `json:"testcaseResults"`
}

func toAssignmentJSON(a model.Assignment) assignmentJSON {
	return assignmentJSON{Content: a.Content, Language: a.Language}
}

func (r reviewResponseJSON) toModel() model.ReviewResult {
	out := model.ReviewResult{
		Summary: r.Summary,
		Detail:  r.Detail,
		Items:   make([]model.AnnotationItem, 0, len(r.ReviewItems)),
	}
	for _, it := range r.ReviewItems {
		item := model.AnnotationItem{
			Range:         model.LineRange{Start: it.Line.Start, End: it.Line.End}.Normalize(),
			Category:      model.Category(it.Type),
			Issue:         it.Issue,
			FixSuggestion: it.FixSuggestion,
			Snippet:       it.CodeSnippet,
		}
		if it.Column != nil {
			item.Columns = &model.ColumnRange{Start: it.Column.Start, End: it.Column.End}
		}
		out.Items = append(out.Items, item)
	}
	return out
}

// toModel picks the compile-error variant whenever the service reported one,
// regardless of any outcomes sent alongside it.
func (r runResponseJSON) toModel() model.TestRunResult {
	if r.CompileError != "" {
		return model.CompileFailure(r.CompileError)
	}
	if r.ErrorMessage != "" {
		return model.CompileFailure(r.ErrorMessage)
	}

	outcomes := make([]model.TestCaseOutcome, 0, len(r.TestcaseResults))
	for _, tr := range r.TestcaseResults {
		outcomes = append(outcomes, model.TestCaseOutcome{
			Name:         tr.Name,
			Status:       model.ParseTestStatus(tr.Status),
			Input:        tr.Input,
			Expected:     tr.Expect,
			Actual:       tr.Actual,
			ErrorMessage: tr.ErrorMessage,
		})
	}
	return model.Outcomes(outcomes)
}

// decodeLanguage accepts either ["cpp", "9.4.0"] or {"id": "cpp", "version": "9.4.0"}.
func decodeLanguage(raw json.RawMessage) (Language, error) {
	var pair []string
	if err := json.Unmarshal(raw, &pair); err == nil {
		if len(pair) == 0 {
			return Language{}, fmt.Errorf("empty language entry")
		}
		lang := Language{ID: pair[0]}
		if len(pair) > 1 {
			lang.Version = pair[1]
		}
		return lang, nil
	}

	var obj struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Language{}, fmt.Errorf("unrecognised language entry %s", string(raw))
	}
	id := obj.ID
	if id == "" {
		id = obj.Name
	}
	if id == "" {
		return Language{}, fmt.Errorf("language entry without id")
	}
	return Language{ID: id, Version: obj.Version}, nil
}
