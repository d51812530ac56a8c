package models

import (
	"fmt"
	"net/http"
)

// ApiErrorCode is the closed set of error codes the server can return. The
// leading three digits mirror the HTTP status the error is usually sent with.
type ApiErrorCode uint16

const (
	CodeUnknown ApiErrorCode = 0

	CodeInternalError       ApiErrorCode = 50000
	CodeInternalErrorStatic ApiErrorCode = 50001
	CodeDbError             ApiErrorCode = 50002
	CodeJoinError           ApiErrorCode = 50003
	CodeSemaphoreError      ApiErrorCode = 50004
	CodeHashError           ApiErrorCode = 50005
	CodeJsonError           ApiErrorCode = 50006
	CodeEventEncodingError  ApiErrorCode = 50007
	CodeUnimplemented       ApiErrorCode = 50100

	CodeBadRequest               ApiErrorCode = 40000
	CodeInvalidEmail             ApiErrorCode = 40001
	CodeInvalidUsername          ApiErrorCode = 40002
	CodeInvalidPassword          ApiErrorCode = 40003
	CodeInsufficientAge          ApiErrorCode = 40004
	CodeInvalidDate              ApiErrorCode = 40005
	CodeUploadError              ApiErrorCode = 40006
	CodeInvalidAuthFormat        ApiErrorCode = 40007
	CodeHeaderParseError         ApiErrorCode = 40008
	CodeInvalidContent           ApiErrorCode = 40009
	CodeInvalidName              ApiErrorCode = 40010
	CodeInvalidTopic             ApiErrorCode = 40011
	CodeInvalidPreferences       ApiErrorCode = 40012
	CodeMissingUploadMetadata    ApiErrorCode = 40013
	CodeChecksumMismatch         ApiErrorCode = 40014
	CodeInvalidCredentials       ApiErrorCode = 40100
	CodeNoSession                ApiErrorCode = 40101
	CodeTOTPRequired             ApiErrorCode = 40102
	CodeMissingAuthorization     ApiErrorCode = 40103
	CodeBanned                   ApiErrorCode = 40300
	CodeBlocked                  ApiErrorCode = 40301
	CodeForbidden                ApiErrorCode = 40302
	CodeNotFound                 ApiErrorCode = 40404
	CodeMethodNotAllowed         ApiErrorCode = 40500
	CodeAlreadyExists            ApiErrorCode = 40900
	CodeUsernameUnavailable      ApiErrorCode = 40901
	CodeConflict                 ApiErrorCode = 40902
	CodeRequestEntityTooLarge    ApiErrorCode = 41300
	CodeUnsupportedMediaType     ApiErrorCode = 41500
	CodeMissingContentTypeHeader ApiErrorCode = 41501
	CodeRateLimited              ApiErrorCode = 42900
)

var apiErrorCodeNames = map[ApiErrorCode]string{
	CodeInternalError:            "InternalError",
	CodeInternalErrorStatic:      "InternalErrorStatic",
	CodeDbError:                  "DbError",
	CodeJoinError:                "JoinError",
	CodeSemaphoreError:           "SemaphoreError",
	CodeHashError:                "HashError",
	CodeJsonError:                "JsonError",
	CodeEventEncodingError:       "EventEncodingError",
	CodeUnimplemented:            "Unimplemented",
	CodeBadRequest:               "BadRequest",
	CodeInvalidEmail:             "InvalidEmail",
	CodeInvalidUsername:          "InvalidUsername",
	CodeInvalidPassword:          "InvalidPassword",
	CodeInsufficientAge:          "InsufficientAge",
	CodeInvalidDate:              "InvalidDate",
	CodeUploadError:              "UploadError",
	CodeInvalidAuthFormat:        "InvalidAuthFormat",
	CodeHeaderParseError:         "HeaderParseError",
	CodeInvalidContent:           "InvalidContent",
	CodeInvalidName:              "InvalidName",
	CodeInvalidTopic:             "InvalidTopic",
	CodeInvalidPreferences:       "InvalidPreferences",
	CodeMissingUploadMetadata:    "MissingUploadMetadata",
	CodeChecksumMismatch:         "ChecksumMismatch",
	CodeInvalidCredentials:       "InvalidCredentials",
	CodeNoSession:                "NoSession",
	CodeTOTPRequired:             "TOTPRequired",
	CodeMissingAuthorization:     "MissingAuthorization",
	CodeBanned:                   "Banned",
	CodeBlocked:                  "Blocked",
	CodeForbidden:                "Forbidden",
	CodeNotFound:                 "NotFound",
	CodeMethodNotAllowed:         "MethodNotAllowed",
	CodeAlreadyExists:            "AlreadyExists",
	CodeUsernameUnavailable:      "UsernameUnavailable",
	CodeConflict:                 "Conflict",
	CodeRequestEntityTooLarge:    "RequestEntityTooLarge",
	CodeUnsupportedMediaType:     "UnsupportedMediaType",
	CodeMissingContentTypeHeader: "MissingContentTypeHeader",
	CodeRateLimited:              "RateLimited",
}

// Known reports whether the code is part of the enumeration.
func (c ApiErrorCode) Known() bool {
	_, ok := apiErrorCodeNames[c]
	return ok
}

func (c ApiErrorCode) String() string {
	if name, ok := apiErrorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(c))
}

// HTTPStatus is the status code the server pairs with this error.
func (c ApiErrorCode) HTTPStatus() int {
	if !c.Known() {
		return http.StatusInternalServerError
	}
	return int(c) / 100
}

// ApiError is the structured error body returned with non-success responses.
type ApiError struct {
	Code    ApiErrorCode `json:"code" cbor:"code"`
	Message string       `json:"message" cbor:"message"`
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", uint16(e.Code), e.Code, e.Message)
}

// IsNotFound reports whether the error is the canonical not-found error.
func (e *ApiError) IsNotFound() bool {
	return e != nil && e.Code == CodeNotFound
}
