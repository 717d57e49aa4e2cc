package upload

// Outcome classifies the server or network response to one uploaded part.
type Outcome int

// Part outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidAPIKey
	OutcomeInvalidData
	OutcomeConnectionError
	OutcomeServerError
	OutcomeFailure
	OutcomePermissionDenied

	outcomeCount
)

//nolint:gochecknoglobals // Lookup table.
var outcomeNames = [outcomeCount]string{
	OutcomeSuccess:          "success",
	OutcomeInvalidAPIKey:    "invalid_api_key",
	OutcomeInvalidData:      "invalid_data",
	OutcomeConnectionError:  "connection_error",
	OutcomeServerError:      "server_error",
	OutcomeFailure:          "failure",
	OutcomePermissionDenied: "permission_denied",
}

func (o Outcome) String() string {
	if o < 0 || o >= outcomeCount {
		return "unknown"
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	out := make([]Outcome, outcomeCount)
	for i := range out {
		out[i] = Outcome(i)
	}
	return out
}

// Result is the aggregate status of a whole upload run.
type Result int

// Run results.
const (
	ResultNotStarted Result = iota
	ResultNoData
	ResultSuccess
	ResultPartiallySucceeded
	ResultCancelled
	ResultDeleteFailed
	ResultInvalidAPIKey
	ResultInvalidData
	ResultConnectionError
	ResultServerError
	ResultFailure
	ResultPermissionDenied

	resultCount
)

//nolint:gochecknoglobals // Lookup table.
var resultNames = [resultCount]string{
	ResultNotStarted:         "not_started",
	ResultNoData:             "no_data",
	ResultSuccess:            "success",
	ResultPartiallySucceeded: "partially_succeeded",
	ResultCancelled:          "cancelled",
	ResultDeleteFailed:       "delete_failed",
	ResultInvalidAPIKey:      "invalid_api_key",
	ResultInvalidData:        "invalid_data",
	ResultConnectionError:    "connection_error",
	ResultServerError:        "server_error",
	ResultFailure:            "failure",
	ResultPermissionDenied:   "permission_denied",
}

func (r Result) String() string {
	if r < 0 || r >= resultCount {
		return "unknown"
	}
	return resultNames[r]
}

// Results lists every result in declaration order.
func Results() []Result {
	out := make([]Result, resultCount)
	for i := range out {
		out[i] = Result(i)
	}
	return out
}

// outcomeResults maps a terminal part outcome to the run result it causes
// when no part has succeeded yet.
//
//nolint:gochecknoglobals // Lookup table.
var outcomeResults = [...]Result{
	OutcomeSuccess:          ResultSuccess,
	OutcomeInvalidAPIKey:    ResultInvalidAPIKey,
	OutcomeInvalidData:      ResultInvalidData,
	OutcomeConnectionError:  ResultConnectionError,
	OutcomeServerError:      ResultServerError,
	OutcomeFailure:          ResultFailure,
	OutcomePermissionDenied: ResultPermissionDenied,
}

// Fails to compile when an outcome is added without a result mapping.
var _ = [1]struct{}{}[len(outcomeResults)-int(outcomeCount)]

// ResultOf returns the run result for outcome o.
func ResultOf(o Outcome) Result {
	if o < 0 || o >= outcomeCount {
		return ResultFailure
	}
	return outcomeResults[o]
}

// Succeeded reports whether r leaves nothing to retry.
func (r Result) Succeeded() bool {
	switch r {
	case ResultSuccess, ResultNoData, ResultNotStarted:
		return true
	default:
		return false
	}
}

// MarshalText encodes r as its name.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
