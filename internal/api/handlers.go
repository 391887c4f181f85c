package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sprite-ai/crev/internal/annotate"
	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
)

var validate = validator.New()

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Shared payloads ---

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

type reviewResultJSON struct {
	Summary     string           `json:"summary"`
	Detail      string           `json:"detail,omitempty"`
	ReviewItems []reviewItemJSON `json:"review_items"`
}

func (r reviewResultJSON) toModel() model.ReviewResult {
	out := model.ReviewResult{Summary: r.Summary, Detail: r.Detail}
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

func fromModelResult(r model.ReviewResult) reviewResultJSON {
	out := reviewResultJSON{Summary: r.Summary, Detail: r.Detail, ReviewItems: []reviewItemJSON{}}
	for _, it := range r.Items {
		item := reviewItemJSON{
			Type:          string(it.Category),
			Issue:         it.Issue,
			FixSuggestion: it.FixSuggestion,
			Line:          rangeJSON{Start: it.Range.Start, End: it.Range.End},
			CodeSnippet:   it.Snippet,
		}
		if it.Columns != nil {
			item.Column = &rangeJSON{Start: it.Columns.Start, End: it.Columns.End}
		}
		out.ReviewItems = append(out.ReviewItems, item)
	}
	return out
}

type decorationJSON struct {
	Line        int    `json:"line"`
	StartColumn int    `json:"start_column"`
	EndColumn   int    `json:"end_column"`
	Class       string `json:"class"`
	Item        int    `json:"item"`
}

func toDecorationsJSON(decs []annotate.Decoration) []decorationJSON {
	out := make([]decorationJSON, 0, len(decs))
	for _, d := range decs {
		out = append(out, decorationJSON{
			Line:        d.Line,
			StartColumn: d.StartColumn,
			EndColumn:   d.EndColumn,
			Class:       d.Class.String(),
			Item:        d.Item,
		})
	}
	return out
}

type hoverJSON struct {
	Line     int    `json:"line"`
	Found    bool   `json:"found"`
	Markdown string `json:"markdown,omitempty"`
}

type outcomeJSON struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	Input        string `json:"input"`
	Expected     string `json:"expected"`
	Actual       string `json:"actual"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func toOutcomeJSON(o model.TestCaseOutcome) outcomeJSON {
	return outcomeJSON{
		Name:         o.Name,
		Status:       o.Status.String(),
		Input:        o.Input,
		Expected:     o.Expected,
		Actual:       o.Actual,
		ErrorMessage: o.ErrorMessage,
	}
}

type operationJSON struct {
	Phase string `json:"phase"`
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

func toOperationJSON[T any](st operation.State[T]) operationJSON {
	return operationJSON{
		Phase: st.Phase.String(),
		Token: string(st.Token),
		Error: st.ErrorMessage,
	}
}

// --- Decorate ---

type decorateRequest struct {
	Code   string            `json:"code"`
	Result *reviewResultJSON `json:"result" validate:"required"`
}

type decorateResponse struct {
	LineCount   int              `json:"line_count"`
	Decorations []decorationJSON `json:"decorations"`
	Hovers      []hoverJSON      `json:"hovers"`
}

// handleDecorate maps a review result onto code without any session state.
func (s *Server) handleDecorate(w http.ResponseWriter, r *http.Request) {
	var req decorateRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "result is required")
		return
	}

	buf := buffer.New("request", req.Code)
	result := req.Result.toModel()
	mapper := annotate.NewMapper(buf)
	mapper.SetResult(&result)

	decs := mapper.Decorations()
	resp := decorateResponse{
		LineCount:   buf.LineCount(),
		Decorations: toDecorationsJSON(decs),
		Hovers:      []hoverJSON{},
	}

	seen := make(map[int]bool)
	for _, d := range decs {
		if seen[d.Line] {
			continue
		}
		seen[d.Line] = true
		if item, ok := mapper.HoverAt(d.Line); ok {
			resp.Hovers = append(resp.Hovers, hoverJSON{Line: d.Line, Found: true, Markdown: annotate.HoverMarkdown(item)})
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}
