package domain

import "fmt"

// Error codes are closed per-subsystem variants so handlers can switch
// exhaustively instead of string-matching. The wire code (BIZ_*/VAL_*/INT_*)
// is derived, not stored by callers.

type QueueErrorCode int

const (
	QueueAlreadyActive QueueErrorCode = iota
	QueueInvalidLevelRange
	QueuePartyOffline
	QueueRateLimited
	QueueMatchLocked
	QueuePriorityLimit
)

var queueCodes = map[QueueErrorCode]string{
	QueueAlreadyActive:     "BIZ_QUEUE_ALREADY_ACTIVE",
	QueueInvalidLevelRange: "VAL_QUEUE_INVALID_LEVEL_RANGE",
	QueuePartyOffline:      "VAL_QUEUE_PARTY_OFFLINE",
	QueueRateLimited:       "VAL_QUEUE_RATE_LIMIT",
	QueueMatchLocked:       "BIZ_QUEUE_MATCH_LOCKED",
	QueuePriorityLimit:     "BIZ_QUEUE_PRIORITY_LIMIT",
}

type QueueError struct {
	Code   QueueErrorCode
	Detail string
}

func (e *QueueError) Error() string {
	if e.Detail == "" {
		return queueCodes[e.Code]
	}
	return fmt.Sprintf("%s: %s", queueCodes[e.Code], e.Detail)
}

func (e *QueueError) WireCode() string { return queueCodes[e.Code] }

func NewQueueError(code QueueErrorCode, format string, args ...any) *QueueError {
	return &QueueError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

type MatchErrorCode int

const (
	MatchAlreadyConfirmed MatchErrorCode = iota
	MatchInvalidToken
	MatchProposalNotFound
)

var matchCodes = map[MatchErrorCode]string{
	MatchAlreadyConfirmed: "BIZ_MATCH_ALREADY_CONFIRMED",
	MatchInvalidToken:     "VAL_MATCH_INVALID_TOKEN",
	MatchProposalNotFound: "BIZ_MATCH_NOT_FOUND",
}

type MatchError struct {
	Code   MatchErrorCode
	Detail string
}

func (e *MatchError) Error() string {
	if e.Detail == "" {
		return matchCodes[e.Code]
	}
	return fmt.Sprintf("%s: %s", matchCodes[e.Code], e.Detail)
}

func (e *MatchError) WireCode() string { return matchCodes[e.Code] }

func NewMatchError(code MatchErrorCode, format string, args ...any) *MatchError {
	return &MatchError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

type RatingErrorCode int

const (
	RatingDuplicateDelta RatingErrorCode = iota
	RatingInvalidResult
	RatingInvalidPlacement
	RatingSeasonClosed
	RatingAnalyticsFailure
)

var ratingCodes = map[RatingErrorCode]string{
	RatingDuplicateDelta:   "BIZ_RATING_DUPLICATE_DELTA",
	RatingInvalidResult:    "VAL_RATING_INVALID_RESULT",
	RatingInvalidPlacement: "VAL_RATING_INVALID_PLACEMENT",
	RatingSeasonClosed:     "BIZ_RATING_SEASON_RUNNING",
	RatingAnalyticsFailure: "INT_RATING_ANALYTICS_FAILURE",
}

type RatingError struct {
	Code   RatingErrorCode
	Detail string
}

func (e *RatingError) Error() string {
	if e.Detail == "" {
		return ratingCodes[e.Code]
	}
	return fmt.Sprintf("%s: %s", ratingCodes[e.Code], e.Detail)
}

func (e *RatingError) WireCode() string { return ratingCodes[e.Code] }

func NewRatingError(code RatingErrorCode, format string, args ...any) *RatingError {
	return &RatingError{Code: code, Detail: fmt.Sprintf(format, args...)}
}
