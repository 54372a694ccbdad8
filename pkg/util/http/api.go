package http

import (
	"net/http"
	"net/url"
	"reflect"

	"golang.org/x/net/context"

	"github.com/go-chi/render"

	govalidator "github.com/thedevsaddam/govalidator"
)

// ValidatorStructRequest validates a JSON request body against the struct tags
// of data. data must be a pointer.
func ValidatorStructRequest(r *http.Request, data interface{}, message govalidator.MapData) url.Values {
	opts := govalidator.Options{
		Request: r,
		Data:    data,
	}
	if message != nil {
		opts.Messages = message
	}
	v := govalidator.New(opts)
	result := v.ValidateJSON()
	return result
}

// ValidatorRequestStructAndErrorResponse validates the request body into data.
// Returns true when the handler may continue, false when a validation error
// response has already been written.
func ValidatorRequestStructAndErrorResponse(r *http.Request, w http.ResponseWriter, data interface{}, message govalidator.MapData) bool {
	if re := ValidatorStructRequest(r, data, message); len(re) > 0 {
		ReturnValidationError(r, w, re)
		return false
	}
	return true
}

// ResponseBody api response envelope
type ResponseBody struct {
	ValidationError url.Values  `json:"validation_error,omitempty"`
	Msg             string      `json:"msg,omitempty"`
	Bean            interface{} `json:"bean,omitempty"`
	List            interface{} `json:"list,omitempty"`
}

// ReturnValidationError write a 422 with the field errors
func ReturnValidationError(r *http.Request, w http.ResponseWriter, err url.Values) {
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, http.StatusUnprocessableEntity))
	render.DefaultResponder(w, r, ResponseBody{ValidationError: err})
}

// ReturnSuccess write a 200 response, slices go to List, everything else to Bean
func ReturnSuccess(r *http.Request, w http.ResponseWriter, datas interface{}) {
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, http.StatusOK))
	if datas == nil {
		render.DefaultResponder(w, r, ResponseBody{Bean: nil})
		return
	}
	v := reflect.ValueOf(datas)
	if v.Kind() == reflect.Slice {
		render.DefaultResponder(w, r, ResponseBody{List: datas})
		return
	}
	render.DefaultResponder(w, r, ResponseBody{Bean: datas})
}

// ReturnError write an error response with the given status code
func ReturnError(r *http.Request, w http.ResponseWriter, code int, msg string) {
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, code))
	render.DefaultResponder(w, r, ResponseBody{Msg: msg})
}
