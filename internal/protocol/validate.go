package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://gridnav.dev/schemas/"

// Validator checks raw messages against the embedded JSON schemas.
type Validator struct {
	byType map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	files := map[string]string{
		TypeHello:   "hello.schema.json",
		TypeWelcome: "welcome.schema.json",
		TypeCmd:     "cmd.schema.json",
		TypeState:   "state.schema.json",
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range files {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	v := &Validator{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range files {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.byType[typ] = s
	}
	return v, nil
}

// Validate decodes raw and checks it against the schema for typ.
func (v *Validator) Validate(typ string, raw []byte) error {
	s := v.byType[typ]
	if s == nil {
		return fmt.Errorf("no schema for message type %q", typ)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// ValidateValue checks an already-decoded document.
func (v *Validator) ValidateValue(typ string, doc any) error {
	s := v.byType[typ]
	if s == nil {
		return fmt.Errorf("no schema for message type %q", typ)
	}
	return s.Validate(doc)
}
