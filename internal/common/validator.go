package common

import (
	"github.com/go-playground/validator"
)

// GenericEchoValidator validates bound request bodies using struct tags.
// Failures are reported as InvalidRequest so the API error handler renders
// them like every other engine error.
type GenericEchoValidator struct {
	Validator *validator.Validate
}

func NewGenericEchoValidator() *GenericEchoValidator {
	return &GenericEchoValidator{Validator: validator.New()}
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if err := gv.Validator.Struct(i); err != nil {
		return InvalidRequest("received invalid request body: %v", err)
	}
	return nil
}
