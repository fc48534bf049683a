package plans

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/plansync-backend/internal/record"
)

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ShapeError lists every rule a document broke.
type ShapeError struct {
	Fields []FieldError
}

func (e *ShapeError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid shape"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Rule)
	}
	return "invalid shape: " + strings.Join(parts, "; ")
}

type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// ValidatePlan checks a full plan document.
func (pv *Validator) ValidatePlan(v record.Value) error {
	var p Plan
	if err := pv.decode(v, &p); err != nil {
		return err
	}
	return pv.check(&p)
}

// ValidatePatch checks a partial update document.
func (pv *Validator) ValidatePatch(v record.Value) error {
	var p Patch
	if err := pv.decode(v, &p); err != nil {
		return err
	}
	return pv.check(&p)
}

// Decode returns the typed plan held in v, validated.
func (pv *Validator) Decode(v record.Value) (*Plan, error) {
	var p Plan
	if err := pv.decode(v, &p); err != nil {
		return nil, err
	}
	if err := pv.check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (pv *Validator) decode(v record.Value, dst any) error {
	if _, ok := v.(record.Object); !ok {
		return &ShapeError{Fields: []FieldError{{Field: "$", Rule: "object"}}}
	}
	if err := record.Decode(v, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &ShapeError{Fields: []FieldError{{Field: typeErr.Field, Rule: "type", Param: typeErr.Type.String()}}}
		}
		return &ShapeError{Fields: []FieldError{{Field: "$", Rule: "decode", Param: err.Error()}}}
	}
	return nil
}

func (pv *Validator) check(s any) error {
	err := pv.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ShapeError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: trimRoot(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}

// trimRoot drops the Go struct name validator puts in front of namespaces.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
