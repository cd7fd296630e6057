package components

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks that a schema document is structurally well formed.
type Validator interface {
	Validate(ctx context.Context, raw []byte) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, raw []byte) error

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, raw []byte) error {
	return f(ctx, raw)
}

// Dialects accepted by ValidatorFor.
const (
	DialectJSONSchema = "jsonschema"
	DialectOpenAPI    = "openapi"
)

// ValidatorFor returns the validator for a schema dialect name. An empty
// name selects JSON Schema.
func ValidatorFor(dialect string) (Validator, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "", DialectJSONSchema:
		return NewValidator(), nil
	case DialectOpenAPI:
		return NewOpenAPIValidator(), nil
	default:
		return nil, fmt.Errorf("components: unknown schema dialect %q", dialect)
	}
}

const draft2020 = "https://json-schema.org/draft/2020-12/schema"

type metaSchemaValidator struct {
	mu    sync.Mutex
	metas map[string]*jsonschema.Schema
}

// NewValidator returns the default validator. It checks the document against
// the meta-schema named by its $schema keyword, draft 2020-12 when absent.
// Only the bundled drafts (4, 6, 7, 2019-09, 2020-12) are known; references to
// other documents are not followed.
func NewValidator() Validator {
	return &metaSchemaValidator{metas: make(map[string]*jsonschema.Schema)}
}

func (v *metaSchemaValidator) Validate(_ context.Context, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("schema: document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	metaURL := draft2020
	if obj, ok := doc.(map[string]any); ok {
		if declared, ok := obj["$schema"].(string); ok && strings.TrimSpace(declared) != "" {
			metaURL = strings.TrimSpace(declared)
		}
	}

	meta, err := v.meta(metaURL)
	if err != nil {
		return fmt.Errorf("unsupported $schema %q", metaURL)
	}
	return meta.Validate(doc)
}

func (v *metaSchemaValidator) meta(url string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if meta, ok := v.metas[url]; ok {
		return meta, nil
	}

	c := jsonschema.NewCompiler()
	c.UseLoader(jsonschema.SchemeURLLoader{})
	c.AssertFormat()
	meta, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	v.metas[url] = meta
	return meta, nil
}

// jsonSchemaSiblings are JSON Schema keywords that the OpenAPI schema object
// does not model but which are legal in component schemas.
var jsonSchemaSiblings = []string{
	"$schema", "$id", "$defs", "$comment", "$anchor",
	"definitions", "examples", "const",
}

type openAPIValidator struct {
	opts []openapi3.ValidationOption
}

// NewOpenAPIValidator validates documents as OpenAPI 3.0 schema objects. It
// is stricter than JSON Schema (arrays need items, no "null" type) and suits
// components shared with an OpenAPI description.
func NewOpenAPIValidator() Validator {
	return openAPIValidator{
		opts: []openapi3.ValidationOption{
			openapi3.AllowExtraSiblingFields(jsonSchemaSiblings...),
			openapi3.DisableSchemaFormatValidation(),
		},
	}
}

func (v openAPIValidator) Validate(ctx context.Context, raw []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(raw) == 0 {
		return errors.New("schema: document is empty")
	}

	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return err
	}
	return schema.Validate(ctx, v.opts...)
}

func issueMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(err.Error())
	msg = strings.TrimPrefix(msg, "schema: ")
	msg = strings.TrimPrefix(msg, "failed to unmarshal property ")
	msg = strings.Join(strings.Fields(strings.ReplaceAll(msg, "\n", " ")), " ")
	if msg == "" {
		return "invalid schema"
	}
	return msg
}
