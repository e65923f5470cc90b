package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/html"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9-]+$`)
	tagPattern     = regexp.MustCompile(`^[a-z0-9\s-]+$`)
	badURLProtocol = regexp.MustCompile(`(?i)(javascript|data|vbscript):`)
)

const maxTagLen = 30

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	must("safeurl", func(fl validator.FieldLevel) bool {
		return safeURL(fl.Field().String())
	})
	return v
}

// safeURL allows empty values and plain http(s) links only.
func safeURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	return !badURLProtocol.MatchString(s)
}

// normalizeTags lowercases and trims tags and drops the ones that are not
// short alphanumeric labels.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && len(t) <= maxTagLen && tagPattern.MatchString(t) {
			out = append(out, t)
		}
	}
	return out
}

// stripTags removes markup from free text, keeping text content as typed.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}

// decodeJSON reads r's body into dst. Oversized bodies map to 413 and
// malformed ones to 400.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return respond.NewError(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return &respond.Error{Status: http.StatusBadRequest, Detail: "Invalid JSON body", Err: err}
	}
	return nil
}

// check validates v. A failure emits INPUT_REJECTED naming the first bad
// field and becomes a 422.
func (api *API) check(r *http.Request, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	first := verrs[0]
	api.events.Emit(r.Context(), secevent.FromRequest(r, secevent.InputRejected, clientip.FromRequest(r),
		map[string]any{"field": first.Field(), "reason": first.Tag()}))
	return &respond.Error{
		Status: http.StatusUnprocessableEntity,
		Detail: fmt.Sprintf("Invalid field: %s", first.Field()),
		Err:    err,
	}
}
