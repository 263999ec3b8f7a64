// Zaparoo Factory Test
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Factory Test.
//
// Zaparoo Factory Test is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Factory Test is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Factory Test.  If not, see <http://www.gnu.org/licenses/>.

// Package validation checks API request parameters with
// go-playground/validator plus station-specific tags.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

// serialRe matches product, config, year, week, machine and hex counter.
var serialRe = regexp.MustCompile(`^N[de][a-z][a-zA-Z][1-9][0-9A-F]{4,}$`)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("serial", validateSerial)
	return &Validator{validate: v}
}

var DefaultValidator = NewValidator()

func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal decodes params into dest and validates it.
func ValidateAndUnmarshal[T any](params json.RawMessage, dest *T) error {
	if len(params) == 0 || string(params) == "null" {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return ErrInvalidParams
	}
	return DefaultValidator.Validate(dest)
}

// UnmarshalOptional is ValidateAndUnmarshal for methods whose params may
// be omitted entirely.
func UnmarshalOptional[T any](params json.RawMessage, dest *T) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	return ValidateAndUnmarshal(params, dest)
}

func validateSerial(fl validator.FieldLevel) bool {
	return serialRe.MatchString(fl.Field().String())
}

func IsSerial(s string) bool {
	return serialRe.MatchString(s)
}
