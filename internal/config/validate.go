package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Station-Manager/elm327/params"
	"github.com/Station-Manager/elm327/pid"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("protocol", func(fl validator.FieldLevel) bool {
			_, ok := pid.LookupProtocol(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("parameter", func(fl validator.FieldLevel) bool {
			_, ok := params.Lookup(fl.Field().String())
			return ok
		})
		validate = v
	})
	return validate
}

// Validate checks every section. Each failing field is reported.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("config: %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}
