package router

import (
	"errors"

	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/pseudonym"
)

var (
	// ErrEmptyQuery is returned when there is nothing to route.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrClassificationAmbiguous marks a low-confidence classification.
	// It is resolved by routing Complex and never returned to callers.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrExtractionValidation marks a dropped filter value; see
	// extractor.Warning.
	ErrExtractionValidation = extractor.ErrValidation

	// ErrRecordStoreUnavailable means the record store failed after retries.
	ErrRecordStoreUnavailable = errors.New("record store unavailable")

	// ErrLLMUnavailable means every configured provider failed.
	ErrLLMUnavailable = llm.ErrUnavailable

	// ErrMappingConflict is absorbed by the pseudonym service.
	ErrMappingConflict = pseudonym.ErrConflict
)

// Notice codes surfaced on partial results.
const (
	NoticeRecordStoreUnavailable = "record_store_unavailable"
	NoticeAnalysisUnavailable    = "analysis_unavailable"
)

// Notice tells the caller which part of an answer is missing.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var noticeMessages = map[string]string{
	NoticeRecordStoreUnavailable: "The findings store could not be reached; the listing may be empty or incomplete.",
	NoticeAnalysisUnavailable:    "Analysis unavailable: no language model could be reached, so only the listing is shown.",
}

func newNotice(code string) Notice {
	return Notice{Code: code, Message: noticeMessages[code]}
}
