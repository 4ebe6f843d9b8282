// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/kraklabs/scalpel/internal/errors"
	"github.com/kraklabs/scalpel/pkg/engine"
	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/sanitize"
	"github.com/kraklabs/scalpel/pkg/surgery"
)

// mapError converts any engine error into the envelope's error body. Parse
// and resolution failures surface locally with locations; budget and
// cancellation signals keep their kinds; everything unrecognized becomes
// internal_error with no internal type names leaked.
func mapError(err error) *ErrorBody {
	var analysisErr *errors.AnalysisError
	if stderrors.As(err, &analysisErr) {
		body := &ErrorBody{
			Kind:       analysisErr.Kind,
			Message:    analysisErr.Message,
			Suggestion: analysisErr.SuggestText,
		}
		if analysisErr.Location != nil {
			body.Location = analysisErr.Location.String()
		}
		if len(analysisErr.Suggestions) > 0 {
			body.Details = map[string]any{"suggestions": analysisErr.Suggestions}
		}
		return body
	}

	var notUTF8 *sanitize.ErrNotUTF8
	if stderrors.As(err, &notUTF8) {
		return &ErrorBody{
			Kind:       errors.KindEncodingError,
			Message:    "input is not valid UTF-8",
			Suggestion: "re-encode the source as UTF-8 before submitting",
		}
	}

	var parseErr *frontend.ParseError
	if stderrors.As(err, &parseErr) {
		return &ErrorBody{
			Kind:     errors.KindParseError,
			Message:  parseErr.Message,
			Location: fmt.Sprintf("line %d", parseErr.Line),
		}
	}

	var ambiguousLang *engine.ErrAmbiguousLanguage
	if stderrors.As(err, &ambiguousLang) {
		return &ErrorBody{
			Kind:       errors.KindLanguageAmbiguous,
			Message:    ambiguousLang.Error(),
			Suggestion: "pass the language argument explicitly",
		}
	}

	var unsupported *engine.ErrUnsupportedLanguage
	if stderrors.As(err, &unsupported) {
		return &ErrorBody{
			Kind:    errors.KindUnsupportedLanguage,
			Message: unsupported.Error(),
		}
	}

	var notFound *surgery.ErrNotFound
	if stderrors.As(err, &notFound) {
		return &ErrorBody{
			Kind:    errors.KindSymbolNotFound,
			Message: notFound.Error(),
		}
	}

	var ambiguous *surgery.ErrAmbiguous
	if stderrors.As(err, &ambiguous) {
		return &ErrorBody{
			Kind:       errors.KindAmbiguousTarget,
			Message:    ambiguous.Error(),
			Suggestion: "qualify the method as Class.method",
			Details:    map[string]any{"matches": ambiguous.Matches},
		}
	}

	var invalidRepl *surgery.ErrInvalidReplacement
	if stderrors.As(err, &invalidRepl) {
		return &ErrorBody{Kind: errors.KindInvalidReplacement, Message: invalidRepl.Error()}
	}

	var wouldBreak *surgery.ErrWouldBreakFile
	if stderrors.As(err, &wouldBreak) {
		return &ErrorBody{Kind: errors.KindWouldBreakFile, Message: wouldBreak.Error()}
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return &ErrorBody{Kind: errors.KindCancelled, Message: "operation cancelled"}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &ErrorBody{Kind: errors.KindTimeout, Message: "operation exceeded its wall-clock budget"}
	}

	return &ErrorBody{Kind: errors.KindInternal, Message: "internal error"}
}

// argError builds an invalid_argument analysis error.
func argError(format string, args ...any) *errors.AnalysisError {
	return errors.NewAnalysis(errors.KindInvalidArgument, fmt.Sprintf(format, args...))
}
