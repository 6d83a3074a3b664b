// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// CodeValidation tags request bodies that fail schema validation.
const CodeValidation = "VALIDATION_FAILED"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type loginRequest struct {
	Email      string `json:"email" jsonschema:"minLength=1"`
	Password   string `json:"password" jsonschema:"minLength=1"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type signupRequest struct {
	FirstName       string `json:"firstName" jsonschema:"minLength=1,maxLength=50"`
	LastName        string `json:"lastName" jsonschema:"minLength=1,maxLength=50"`
	Username        string `json:"username" jsonschema:"minLength=3,maxLength=30,pattern=^[a-zA-Z0-9_]+$"`
	Email           string `json:"email" jsonschema:"minLength=3"`
	Password        string `json:"password" jsonschema:"minLength=8,maxLength=72"`
	ConfirmPassword string `json:"confirmPassword" jsonschema:"minLength=1"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

type profileRequest struct {
	FirstName    *string `json:"firstName,omitempty" jsonschema:"maxLength=50"`
	LastName     *string `json:"lastName,omitempty" jsonschema:"maxLength=50"`
	Username     *string `json:"username,omitempty" jsonschema:"maxLength=30"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty" jsonschema:"maxLength=32"`
	CountryCode  *string `json:"countryCode,omitempty" jsonschema:"maxLength=8"`
	City         *string `json:"city,omitempty" jsonschema:"maxLength=100"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

// Report bodies only constrain types; missing fields are reported by the
// services with their own messages.
type reportRequest struct {
	Disease    string  `json:"disease,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Severity   string  `json:"severity,omitempty"`
	Treatment  string  `json:"treatment,omitempty"`
	Prevention string  `json:"prevention,omitempty"`
	ImageURL   string  `json:"imageUrl,omitempty"`
}

type recommendationRequest struct {
	Crop           string   `json:"crop,omitempty"`
	Suitability    string   `json:"suitability,omitempty"`
	Profit         string   `json:"profit,omitempty"`
	ExpectedYield  string   `json:"expected_yield,omitempty"`
	BestSeason     string   `json:"best_season,omitempty"`
	WhyRecommended []string `json:"why_recommended,omitempty"`
}

// Violation is one schema failure reported to the client.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

var schemaCache sync.Map // reflect.Type -> *jschema.Schema

// compiledSchema reflects the JSON Schema of v's type and compiles it once.
func compiledSchema(v any) (*jschema.Schema, error) {
	t := reflect.TypeOf(v)
	if sch, ok := schemaCache.Load(t); ok {
		return sch.(*jschema.Schema), nil
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, oops.With("type", t.String()).Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.With("type", t.String()).Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("request.json", doc); err != nil {
		return nil, oops.With("type", t.String()).Wrap(err)
	}
	sch, err := c.Compile("request.json")
	if err != nil {
		return nil, oops.With("type", t.String()).Wrap(err)
	}
	schemaCache.Store(t, sch)
	return sch, nil
}

// decode reads the request body, validates it against the schema of dst and
// unmarshals it into dst.
func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return oops.Code(CodeValidation).Wrap(err)
	}

	instance, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code(CodeValidation).Errorf("request body must be valid JSON")
	}

	sch, err := compiledSchema(dst)
	if err != nil {
		return err
	}
	if err := sch.Validate(instance); err != nil {
		return oops.Code(CodeValidation).
			With("details", violations(err)).
			Errorf("Validation failed")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code(CodeValidation).Wrap(err)
	}
	return nil
}

func violations(err error) []Violation {
	var ve *jschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Path: "", Message: err.Error()}}
	}
	var out []Violation
	for _, unit := range ve.BasicOutput().Errors {
		if unit.Error == nil {
			continue
		}
		out = append(out, Violation{Path: unit.InstanceLocation, Message: unit.Error.String()})
	}
	if len(out) == 0 {
		out = append(out, Violation{Message: ve.Error()})
	}
	return out
}
