/**
 * Copyright (c) 2020-present Snowplow Analytics Ltd.
 * All rights reserved.
 *
 * This software is made available by Snowplow Analytics, Ltd.,
 * under the terms of the Snowplow Limited Use License Agreement, Version 1.1
 * located at https://docs.snowplow.io/limited-use-license-1.1
 * BY INSTALLING, DOWNLOADING, ACCESSING, USING OR DISTRIBUTING ANY PORTION
 * OF THE SOFTWARE, YOU AGREE TO THE TERMS OF SUCH LICENSE AGREEMENT.
 */

package models

import (
	"fmt"
	"strconv"
)

// ErrorMetadata is an interface which could be implemented by errors produced by the forwarder.
// If an error implements this interface, it has to provide code and description that is safe to report as metadata.
type ErrorMetadata interface {
	ReportableCode() string
	ReportableDescription() string
	ReportableType() string
}

const (
	ErrorTypeAPI        = "api"
	ErrorTypeValidation = "validation"
)

// ValidationError is returned when a mapped event lacks a required field.
// The message wording is relied on by callers and must not change.
type ValidationError struct {
	Path  string
	Field string
}

// NewMissingFieldError builds a ValidationError for a field missing at the root of the event
func NewMissingFieldError(field string) *ValidationError {
	return &ValidationError{Path: "root", Field: field}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("The %s value is missing the required field '%s'.", e.Path, e.Field)
}

func (e *ValidationError) ReportableCode() string {
	return ""
}

func (e *ValidationError) ReportableDescription() string {
	return e.Error()
}

func (e *ValidationError) ReportableType() string {
	return ErrorTypeValidation
}

// ApiError is returned when ODP answers with a non-2xx status
type ApiError struct {
	StatusCode   int
	HttpStatus   string
	ResponseBody string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("HTTP Status Code: %s Body: %s", e.HttpStatus, e.ResponseBody)
}

func (e *ApiError) ReportableCode() string {
	return strconv.Itoa(e.StatusCode)
}

func (e *ApiError) ReportableDescription() string {
	return e.ResponseBody
}

func (e *ApiError) ReportableType() string {
	return ErrorTypeAPI
}

// SetupWriteError is a wrapper for dispatch errors caused by configuration, such as a bad API key.
// It signals to a caller that retrying will not help until the configuration is fixed.
type SetupWriteError struct {
	Err error
}

func (err SetupWriteError) Error() string {
	return err.Err.Error()
}

func (err SetupWriteError) Unwrap() error {
	return err.Err
}

// ThrottleWriteError is a wrapper for dispatch errors caused by rate limiting.
// It signals to a caller that this kind of error should be retried with a backoff.
type ThrottleWriteError struct {
	Err error
}

func (err ThrottleWriteError) Error() string {
	return err.Err.Error()
}

func (err ThrottleWriteError) Unwrap() error {
	return err.Err
}
