package imagegen

import "fmt"

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAPIError
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAPIError:
		return "api_error"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// APIErrorKind classifies application-level errors.
type APIErrorKind int

const (
	APIErrorOther APIErrorKind = iota
	APIErrorRateLimited
	APIErrorUnauthorized
)

func (k APIErrorKind) String() string {
	switch k {
	case APIErrorRateLimited:
		return "rate_limited"
	case APIErrorUnauthorized:
		return "unauthorized"
	default:
		return "other"
	}
}

// Outcome is the result of a single Generate call. Failures are values:
// a Client never returns an error alongside it.
type Outcome struct {
	Kind      OutcomeKind
	Images    [][]byte     // set when Kind == OutcomeSuccess, may be empty
	ErrorKind APIErrorKind // set when Kind == OutcomeAPIError
	Message   string
}

// Success builds a successful outcome.
func Success(images [][]byte) Outcome {
	return Outcome{Kind: OutcomeSuccess, Images: images}
}

// APIError builds an application-level failure.
func APIError(kind APIErrorKind, message string) Outcome {
	return Outcome{Kind: OutcomeAPIError, ErrorKind: kind, Message: message}
}

// TransportError builds a network or non-2xx failure.
func TransportError(message string) Outcome {
	return Outcome{Kind: OutcomeTransportError, Message: message}
}

// IsCredentialError reports a rate-limited or unauthorized API error, the
// two classifications that suggest the token rather than the prompt is bad.
func (o Outcome) IsCredentialError() bool {
	return o.Kind == OutcomeAPIError &&
		(o.ErrorKind == APIErrorRateLimited || o.ErrorKind == APIErrorUnauthorized)
}

// Label is a short classification used in logs and history rows.
func (o Outcome) Label() string {
	if o.Kind == OutcomeAPIError {
		return o.ErrorKind.String()
	}
	return o.Kind.String()
}
