package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// bindJSON decodes a strict JSON body into v and validates it.
func (h *Handler) bindJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return errors.Join(ErrUnsupportedMedia, ErrMissingContentType)
	}
	if mediaType != "application/json" {
		return errors.Join(ErrUnsupportedMedia, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType))
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, h.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.Join(ErrBadRequest, fmt.Errorf("%w: empty body", ErrInvalidJSON))
		}
		return errors.Join(ErrBadRequest, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.Join(ErrBadRequest, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON))
	}

	if err := h.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Join(ErrBadRequest, err)
		}
		out := make(ValidationError, len(fieldErrs))
		for _, fe := range fieldErrs {
			out[fe.Field()] = append(out[fe.Field()], fe.Tag())
		}
		return out
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
