package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/parse"
)

// Read is one tag sighting as reported by a reader.
type Read struct {
	EPC       string   `json:"epc" validate:"required"`
	TID       *string  `json:"tid,omitempty"`
	RSSI      *float64 `json:"rssi,omitempty"`
	Direction string   `json:"direction,omitempty" validate:"omitempty,oneof=IN OUT"`
	Timestamp *string  `json:"timestamp,omitempty"`
}

// Batch is the payload of one reader call.
type Batch struct {
	ReaderID   string  `json:"readerId" validate:"required"`
	ReaderName *string `json:"readerName,omitempty"`
	Reads      []Read  `json:"reads" validate:"required,dive"`
	APIKey     string  `json:"apiKey" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(JSONFieldName)
	return v
}

// JSONFieldName names struct fields by their json tag in validation errors.
func JSONFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// DecodeBatch parses a JSON batch. Syntax errors are reported as validation errors.
func DecodeBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &apperr.ValidationError{Message: "invalid JSON payload"}
	}
	return &b, nil
}

// Validate checks required fields and enum values.
func (b *Batch) Validate() error {
	if err := validate.Struct(b); err != nil {
		return ValidationIssues(err)
	}
	return nil
}

// ValidationIssues converts validator field errors into an apperr.ValidationError.
func ValidationIssues(err error) *apperr.ValidationError {
	ve := &apperr.ValidationError{Message: "invalid payload"}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ve
	}
	for _, fe := range fieldErrs {
		ve.Issues = append(ve.Issues, apperr.Issue{Field: fieldPath(fe), Message: fieldMessage(fe)})
	}
	return ve
}

// fieldPath drops the struct name from the namespace: Batch.reads[0].epc -> reads[0].epc.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "failed " + fe.Tag() + " validation"
}

// reading is a read after normalisation.
type reading struct {
	epc       string
	tid       *string
	rssi      *float64
	direction *model.Direction
	at        time.Time
}

// normalize resolves identifiers, directions and detection times for every read.
// Any unusable read fails the whole batch before processing starts.
func (b *Batch) normalize(now time.Time) ([]reading, error) {
	out := make([]reading, 0, len(b.Reads))
	ve := &apperr.ValidationError{Message: "invalid payload"}

	for i, r := range b.Reads {
		epc, err := parse.EPC(r.EPC)
		if err != nil {
			ve.Issues = append(ve.Issues, apperr.Issue{Field: fmt.Sprintf("reads[%d].epc", i), Message: err.Error()})
		}
		dir, err := parse.Direction(r.Direction)
		if err != nil {
			ve.Issues = append(ve.Issues, apperr.Issue{Field: fmt.Sprintf("reads[%d].direction", i), Message: err.Error()})
		}
		at, err := parse.Timestamp(r.Timestamp, now)
		if err != nil {
			ve.Issues = append(ve.Issues, apperr.Issue{Field: fmt.Sprintf("reads[%d].timestamp", i), Message: err.Error()})
		}
		out = append(out, reading{epc: epc, tid: parse.TID(r.TID), rssi: r.RSSI, direction: dir, at: at})
	}

	if len(ve.Issues) > 0 {
		return nil, ve
	}
	return out, nil
}
