package core

// error_messages.go maps errors to messages a reviewer can act on, each
// with a code support staff can look up.
//
// Codes are grouped by category:
//
//	DB001   product already in the catalog      (ErrDuplicateKey)
//	DB002   unique constraint                   "unique constraint", "violates unique"
//	DB003   referenced record missing           "foreign key constraint", "violates foreign key"
//	DB004   cannot connect to database          "connection refused"
//	DB005   connection interrupted              "connection reset"
//	DB006   timeout                             "timeout"
//	DB007   deadlock                            "deadlock"
//
//	STG001  action not allowed for status       (ErrInvalidState)
//	STG002  staging record not found            (ErrNotFound)
//
//	UPS001  dependency unavailable, retryable   (ErrUpstreamUnavailable)
//
//	VAL000  generic validation failure          (ErrValidation, no pattern)
//	VAL003  required field empty                "required field"
//	VAL004  required column missing             "missing required column"
//	VAL007  too many ids                        "too many ids"
//	VAL008  invalid status                      "invalid status"
//	VAL009  invalid url                         "invalid url"
//
//	FILE001 file too large                      "file too large"
//	FILE002 unreadable spreadsheet              "invalid spreadsheet"
//	FILE003 encoding                            "encoding error"
//	FILE004 no file                             "no file provided"
//	FILE005 empty file                          "empty file"
//	FILE006 unsupported type                    "unsupported file type"
//
//	UPL002  too many concurrent ingests         (ErrTooManyIngests)
//	UPL004  request cancelled                   "context canceled"
//	UPL005  request timed out                   "context deadline exceeded"
//
//	RATE001 rate limited                        "rate limit"
//
//	ERR000  anything else; check the logs for the original error
//
// Typed errors are matched first with errors.Is. Everything else falls
// through to case-insensitive substring patterns where the first match
// wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorKind struct {
	target error
	msg    UserMessage
}

// Order matters: an UpstreamError wrapping a context error is still UPS001.
var errorKinds = []errorKind{
	{ErrDuplicateKey, UserMessage{
		Message: "This product already exists in the catalog",
		Action:  "Review it in the duplicates list and discard or re-approve it",
		Code:    "DB001",
	}},
	{ErrInvalidState, UserMessage{
		Message: "This action is not allowed for the record's current status",
		Action:  "Refresh the list and check the record's status",
		Code:    "STG001",
	}},
	{ErrNotFound, UserMessage{
		Message: "Staging record not found",
		Action:  "It may have been committed or deleted. Refresh the list",
		Code:    "STG002",
	}},
	{ErrUpstreamUnavailable, UserMessage{
		Message: "A required service is temporarily unavailable",
		Action:  "Please try again in a few moments",
		Code:    "UPS001",
	}},
	{ErrTooManyIngests, UserMessage{
		Message: "System is busy processing other ingests",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
}

type errorPattern struct {
	patterns []string
	msg      UserMessage
}

var errorPatterns = []errorPattern{
	// Database
	{[]string{"unique constraint", "violates unique"}, UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate rows in your spreadsheet",
		Code:    "DB002",
	}},
	{[]string{"foreign key constraint", "violates foreign key"}, UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Check that the category exists in the taxonomy",
		Code:    "DB003",
	}},
	{[]string{"connection refused"}, UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{[]string{"connection reset"}, UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},

	// Request lifecycle; before "timeout" so deadlines keep their own code.
	{[]string{"context canceled"}, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{[]string{"context deadline exceeded"}, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller spreadsheet or check your connection",
		Code:    "UPL005",
	}},
	{[]string{"timeout"}, UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller spreadsheet or try again later",
		Code:    "DB006",
	}},
	{[]string{"deadlock"}, UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},

	// Validation
	{[]string{"missing required column"}, UserMessage{
		Message: "Required column is missing from the spreadsheet",
		Action:  "Add product name, manufacturer and variant columns",
		Code:    "VAL004",
	}},
	{[]string{"required field"}, UserMessage{
		Message: "Required field is empty",
		Action:  "Fill in the product name, manufacturer and variant",
		Code:    "VAL003",
	}},
	{[]string{"too many ids"}, UserMessage{
		Message: "Too many records in one request",
		Action:  "Select fewer records and try again",
		Code:    "VAL007",
	}},
	{[]string{"invalid status"}, UserMessage{
		Message: "Status is not one of the allowed values",
		Action:  "Use pending, approved, rejected or duplicate",
		Code:    "VAL008",
	}},
	{[]string{"invalid url"}, UserMessage{
		Message: "Image URL is not valid",
		Action:  "Use an absolute http or https link",
		Code:    "VAL009",
	}},

	// Files
	{[]string{"file too large"}, UserMessage{
		Message: "File exceeds maximum size limit (100MB)",
		Action:  "Split the spreadsheet into smaller files",
		Code:    "FILE001",
	}},
	{[]string{"invalid spreadsheet"}, UserMessage{
		Message: "File is not a readable spreadsheet",
		Action:  "Save it as CSV or XLSX and upload again",
		Code:    "FILE002",
	}},
	{[]string{"encoding error"}, UserMessage{
		Message: "File contains invalid characters",
		Action:  "Save file as UTF-8 encoding",
		Code:    "FILE003",
	}},
	{[]string{"no file provided"}, UserMessage{
		Message: "No file was selected",
		Action:  "Please select a spreadsheet to upload",
		Code:    "FILE004",
	}},
	{[]string{"empty file"}, UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a spreadsheet with product rows",
		Code:    "FILE005",
	}},
	{[]string{"unsupported file type"}, UserMessage{
		Message: "This file type is not supported",
		Action:  "Upload a .csv or .xlsx file",
		Code:    "FILE006",
	}},

	{[]string{"rate limit"}, UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var validationMessage = UserMessage{
	Message: "The request contains invalid data",
	Action:  "Check the highlighted field and try again",
	Code:    "VAL000",
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		for _, p := range ep.patterns {
			if strings.Contains(text, p) {
				return ep.msg
			}
		}
	}

	if errors.Is(err, ErrValidation) {
		return validationMessage
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
