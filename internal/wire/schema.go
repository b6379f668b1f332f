// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package wire

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// schemas caches one compiled schema per payload type.
var schemas sync.Map // reflect.Type -> *jschema.Schema

// SchemaFor returns the JSON schema reflected from t. Fields without
// omitempty are required; unknown properties are allowed.
func SchemaFor(t reflect.Type) *jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	return r.ReflectFromType(t)
}

func compiled(t reflect.Type) (*jschema.Schema, error) {
	if sch, ok := schemas.Load(t); ok {
		return sch.(*jschema.Schema), nil
	}

	doc, err := json.Marshal(SchemaFor(t))
	if err != nil {
		return nil, oops.Code(CodeSchemaFailed).With("type", t.String()).Wrap(err)
	}
	parsed, err := jschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, oops.Code(CodeSchemaFailed).With("type", t.String()).Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("payload.json", parsed); err != nil {
		return nil, oops.Code(CodeSchemaFailed).With("type", t.String()).Wrap(err)
	}
	sch, err := c.Compile("payload.json")
	if err != nil {
		return nil, oops.Code(CodeSchemaFailed).With("type", t.String()).Wrap(err)
	}

	actual, _ := schemas.LoadOrStore(t, sch)
	return actual.(*jschema.Schema), nil
}

// DecodeInto validates raw against the schema of T and unmarshals it.
func DecodeInto[T any](raw json.RawMessage) (T, error) {
	var out T
	t := reflect.TypeOf(&out).Elem()

	sch, err := compiled(t)
	if err != nil {
		return out, err
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return out, oops.Code(CodeInvalidPayload).
			With("type", t.String()).
			Wrapf(err, "payload is not JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return out, oops.Code(CodeInvalidPayload).
			With("type", t.String()).
			Wrapf(err, "payload does not match schema")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, oops.Code(CodeInvalidPayload).
			With("type", t.String()).
			Wrap(err)
	}
	return out, nil
}
