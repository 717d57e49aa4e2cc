package upload

import "fmt"

// Exit codes for the upload command.
const (
	ExitOK                 = 0
	ExitFailed             = 1
	ExitPartiallySucceeded = 2
	ExitCancelled          = 3
)

type presentation struct {
	message     string
	description string
}

var successPresentation = presentation{
	message:     "Upload finished",
	description: "All measurements have been uploaded to OpenCellID.",
}

//nolint:gochecknoglobals // Lookup table.
var presentations = [resultCount]presentation{
	ResultNotStarted: successPresentation,
	ResultSuccess:    successPresentation,
	ResultNoData: {
		message:     "Nothing to upload",
		description: "There are no measurements waiting to be uploaded.",
	},
	ResultPartiallySucceeded: {
		message:     "Upload partially finished",
		description: "Some measurements were uploaded. Run the upload again to send the rest.",
	},
	ResultCancelled: {
		message:     "Upload cancelled",
		description: "The upload was cancelled before any part was sent. No measurements were removed.",
	},
	ResultDeleteFailed: {
		message:     "Upload finished with errors",
		description: "Measurements were uploaded but could not be removed from the local database. They may be uploaded again.",
	},
	ResultInvalidAPIKey: {
		message:     "Invalid API key",
		description: "OpenCellID rejected the API key. Check upload.api_key in the configuration file.",
	},
	ResultInvalidData: {
		message:     "Invalid data",
		description: "OpenCellID rejected the uploaded data. The error has been reported.",
	},
	ResultConnectionError: {
		message:     "Connection error",
		description: "Could not reach OpenCellID. Check the network connection and try again.",
	},
	ResultServerError: {
		message:     "Server error",
		description: "OpenCellID is temporarily unavailable. Try again later.",
	},
	ResultFailure: {
		message:     "Upload failed",
		description: "An unexpected error occurred. See the log for details.",
	},
	ResultPermissionDenied: {
		message:     "Permission denied",
		description: "The process is not allowed to open network connections.",
	},
}

// Message returns a short title for r.
func (r Result) Message() string {
	if r < 0 || r >= resultCount {
		return presentations[ResultFailure].message
	}
	return presentations[r].message
}

// Description returns a sentence explaining r to the user.
func (r Result) Description() string {
	if r < 0 || r >= resultCount {
		return presentations[ResultFailure].description
	}
	return presentations[r].description
}

// ExitCode maps r to the process exit status.
func (r Result) ExitCode() int {
	switch r {
	case ResultSuccess, ResultNoData, ResultNotStarted:
		return ExitOK
	case ResultPartiallySucceeded:
		return ExitPartiallySucceeded
	case ResultCancelled:
		return ExitCancelled
	default:
		return ExitFailed
	}
}

// Summary renders the one-line outcome of a report.
func (rep Report) Summary() string {
	switch rep.Result {
	case ResultSuccess, ResultPartiallySucceeded:
		return fmt.Sprintf("%s: %d measurements in %d of %d parts (%d locations, %d cells, %d days)",
			rep.Result.Message(), rep.Uploaded, rep.SucceededParts, rep.PartsCount,
			rep.Statistics.Locations, rep.Statistics.Cells, rep.Statistics.Days)
	default:
		return rep.Result.Message()
	}
}
