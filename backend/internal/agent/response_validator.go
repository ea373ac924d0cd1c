package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
)

// fencePattern matches ```lang\n...\n``` blocks; the language tag is optional
var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

// Wire types mirror the response schema with pointers wherever presence matters.
// They never leave this file; callers only see state.AgentResponse.

type wireResponse struct {
	ShouldRespond *bool          `json:"should_respond" validate:"required"`
	Response      *wireReply     `json:"response" validate:"omitempty"`
	Analysis      *wireAnalysis  `json:"analysis" validate:"required"`
	Tasks         []wireTask     `json:"tasks" validate:"omitempty,dive"`
	MemoryOps     []wireMemoryOp `json:"memory_ops" validate:"omitempty,dive"`
	Confidence    *float64       `json:"confidence"`
}

type wireReply struct {
	Text  *string `json:"text" validate:"required"`
	Style string  `json:"style"`
}

type wireAnalysis struct {
	Sentiment      string   `json:"sentiment" validate:"required,oneof=positive neutral negative"`
	SentimentScore *float64 `json:"sentiment_score"`
	ToxicityScore  *float64 `json:"toxicity_score"`
	Emotion        string   `json:"emotion"`
	Intent         string   `json:"intent"`
}

type wireTask struct {
	Type   string                 `json:"type" validate:"required"`
	Target string                 `json:"target"`
	Params map[string]interface{} `json:"params"`
}

type wireMemoryOp struct {
	Op     string                 `json:"op" validate:"required,oneof=upsert delete tag"`
	Key    string                 `json:"key" validate:"required"`
	Vector []float64              `json:"vector"`
	Meta   map[string]interface{} `json:"meta"`
}

type jsonKind int

const (
	kindBool jsonKind = iota
	kindString
	kindNumber
	kindObject
	kindArray
)

// shape is the JSON type of a declared field and, for objects and arrays, of its
// children. Undeclared keys are not checked.
type shape struct {
	kind   jsonKind
	fields map[string]shape
	elem   *shape
}

var (
	stringShape = shape{kind: kindString}
	numberShape = shape{kind: kindNumber}
	objectShape = shape{kind: kindObject}

	responseShape = shape{kind: kindObject, fields: map[string]shape{
		"should_respond": {kind: kindBool},
		"response": {kind: kindObject, fields: map[string]shape{
			"text":  stringShape,
			"style": stringShape,
		}},
		"analysis": {kind: kindObject, fields: map[string]shape{
			"sentiment":       stringShape,
			"sentiment_score": numberShape,
			"toxicity_score":  numberShape,
			"emotion":         stringShape,
			"intent":          stringShape,
		}},
		"tasks": {kind: kindArray, elem: &shape{kind: kindObject, fields: map[string]shape{
			"type":   stringShape,
			"target": stringShape,
			"params": objectShape,
		}}},
		"memory_ops": {kind: kindArray, elem: &shape{kind: kindObject, fields: map[string]shape{
			"op":     stringShape,
			"key":    stringShape,
			"vector": {kind: kindArray, elem: &numberShape},
			"meta":   objectShape,
		}}},
		"confidence": numberShape,
	}}
)

// check appends the path of every value under v whose JSON type differs from s.
// A null is treated as absent.
func (s shape) check(path string, v interface{}, out *[]string) {
	if v == nil {
		return
	}
	switch s.kind {
	case kindBool:
		if _, ok := v.(bool); !ok {
			*out = append(*out, rootPath(path))
		}
	case kindString:
		if _, ok := v.(string); !ok {
			*out = append(*out, rootPath(path))
		}
	case kindNumber:
		if _, ok := v.(float64); !ok {
			*out = append(*out, rootPath(path))
		}
	case kindObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			*out = append(*out, rootPath(path))
			return
		}
		for name, child := range s.fields {
			childPath := name
			if path != "" {
				childPath = path + "." + name
			}
			child.check(childPath, obj[name], out)
		}
	case kindArray:
		arr, ok := v.([]interface{})
		if !ok {
			*out = append(*out, rootPath(path))
			return
		}
		if s.elem == nil {
			return
		}
		for i, item := range arr {
			s.elem.check(fmt.Sprintf("%s[%d]", path, i), item, out)
		}
	}
}

func rootPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

// ResponseValidator turns raw model output into a trusted AgentResponse.
// Validate returns exactly one of: a response, *errors.ParseError, *errors.SchemaError.
type ResponseValidator struct {
	validate *validator.Validate
}

// NewResponseValidator creates a validator. It is safe for concurrent use.
func NewResponseValidator() *ResponseValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ResponseValidator{validate: v}
}

// Validate parses raw and checks it against the response schema. Any violation
// discards the whole value.
func (rv *ResponseValidator) Validate(raw string) (state.AgentResponse, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return state.AgentResponse{}, err
	}

	// encoding/json stops reporting after the first type error, so every declared
	// field is type-checked on the generic form first
	var generic interface{}
	violations := []string{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return state.AgentResponse{}, apperrors.NewParseError(raw, err)
		}
		violations = append(violations, typeErrorPath(typeErr))
	} else {
		if _, ok := generic.(map[string]interface{}); !ok {
			return state.AgentResponse{}, apperrors.NewSchemaError([]string{"$"})
		}
		responseShape.check("", generic, &violations)
	}

	var wire wireResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return state.AgentResponse{}, apperrors.NewParseError(raw, err)
		}
		if len(violations) == 0 {
			violations = append(violations, typeErrorPath(typeErr))
		}
	}

	if err := rv.validate.Struct(&wire); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return state.AgentResponse{}, apperrors.NewSchemaError([]string{"$"})
		}
		for _, fe := range fieldErrs {
			violations = append(violations, fieldPath(fe.Namespace()))
		}
	}

	if len(violations) > 0 {
		return state.AgentResponse{}, apperrors.NewSchemaError(dedupe(violations))
	}

	return wire.toAgentResponse(), nil
}

// extractJSON returns the trimmed text if it is JSON, otherwise the first fenced
// block whose body is JSON
func extractJSON(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return []byte(body), nil
		}
	}

	return nil, apperrors.NewParseError(raw, errors.New("no JSON object or fenced JSON block found"))
}

// fieldPath strips the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func typeErrorPath(err *json.UnmarshalTypeError) string {
	if err.Field == "" {
		return "$"
	}
	return err.Field
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (w *wireResponse) toAgentResponse() state.AgentResponse {
	resp := state.AgentResponse{
		ShouldRespond: *w.ShouldRespond,
		Analysis: state.Analysis{
			Sentiment:      w.Analysis.Sentiment,
			SentimentScore: w.Analysis.SentimentScore,
			ToxicityScore:  w.Analysis.ToxicityScore,
			Emotion:        w.Analysis.Emotion,
			Intent:         w.Analysis.Intent,
		},
		Confidence: w.Confidence,
	}

	if w.Response != nil {
		resp.Response = &state.ReplyContent{Text: *w.Response.Text, Style: w.Response.Style}
	}

	for _, t := range w.Tasks {
		resp.Tasks = append(resp.Tasks, state.Task{Type: t.Type, Target: t.Target, Params: t.Params})
	}
	for _, op := range w.MemoryOps {
		resp.MemoryOps = append(resp.MemoryOps, state.MemoryOp{Op: op.Op, Key: op.Key, Vector: op.Vector, Meta: op.Meta})
	}

	return resp
}
