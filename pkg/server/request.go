package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/pipelinecheck/pkg/dag"
	"github.com/matzehuels/pipelinecheck/pkg/errors"
)

// parseRequest is the body of POST /pipelines/parse. Both lists are
// required but may be empty. Unknown fields are ignored.
//
// Edge endpoints are pointers so that a missing field can be told apart
// from an empty string. An empty target is a leaf like any other unknown
// target, and an empty source is reported as an unknown node.
type parseRequest struct {
	Nodes []nodeRequest `json:"nodes" validate:"required,dive"`
	Edges []edgeRequest `json:"edges" validate:"required,dive"`
}

type nodeRequest struct {
	ID string `json:"id" validate:"required"`
}

type edgeRequest struct {
	Source *string `json:"source" validate:"required"`
	Target *string `json:"target" validate:"required"`
}

// validate reports field errors using JSON names, e.g. "nodes[1].id".
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// pipeline converts the request to the analyzer's input.
func (req *parseRequest) pipeline() dag.Pipeline {
	p := dag.Pipeline{
		Nodes: make([]dag.Node, len(req.Nodes)),
		Edges: make([]dag.Edge, len(req.Edges)),
	}
	for i, n := range req.Nodes {
		p.Nodes[i] = dag.Node{ID: n.ID}
	}
	for i, e := range req.Edges {
		p.Edges[i] = dag.Edge{Source: *e.Source, Target: *e.Target}
	}
	return p
}

// decodeParseRequest reads and validates a parse request from r. The body
// is capped at maxBytes when maxBytes is positive.
//
// Errors are *errors.Error values:
//   - INVALID_INPUT for an empty body or malformed JSON
//   - INVALID_PIPELINE for wrong types or missing fields
//   - PIPELINE_TOO_LARGE when the body exceeds maxBytes
func decodeParseRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (*parseRequest, error) {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(body)

	var req parseRequest
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err != nil {
			if tooLarge := decodeError(err); errors.Is(tooLarge, errors.ErrCodePipelineTooLarge) {
				return nil, tooLarge
			}
		}
		return nil, errors.New(errors.ErrCodeInvalidInput, "request body must contain a single JSON object")
	}
	if err := validate.Struct(&req); err != nil {
		return nil, validationError(err)
	}
	return &req, nil
}

func decodeError(err error) error {
	var (
		maxErr    *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case stderrors.As(err, &maxErr):
		return errors.New(errors.ErrCodePipelineTooLarge, "request body exceeds %d bytes", maxErr.Limit)
	case stderrors.Is(err, io.EOF):
		return errors.New(errors.ErrCodeInvalidInput, "request body is empty")
	case stderrors.Is(err, io.ErrUnexpectedEOF):
		return errors.New(errors.ErrCodeInvalidInput, "malformed JSON: unexpected end of input")
	case stderrors.As(err, &syntaxErr):
		return errors.New(errors.ErrCodeInvalidInput, "malformed JSON at offset %d: %v", syntaxErr.Offset, syntaxErr)
	case stderrors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return errors.New(errors.ErrCodeInvalidPipeline, "%s: expected %s, got JSON %s", field, typeErr.Type, typeErr.Value)
	default:
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "read request body")
	}
}

// validationError reports the first failed constraint.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(errors.ErrCodeInvalidPipeline, err, "invalid pipeline")
	}
	fe := verrs[0]
	// Drop the leading struct name: "parseRequest.nodes[1].id" -> "nodes[1].id".
	_, field, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		field = fe.Field()
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	default:
		msg = fmt.Sprintf("failed %q constraint", fe.Tag())
	}
	return errors.New(errors.ErrCodeInvalidPipeline, "%s %s", field, msg)
}
