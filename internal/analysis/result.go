package analysis

import (
	"time"
)

// Frame is a single captured image plus its encoding metadata.
type Frame struct {
	Image      []byte
	MIMEType   string
	CapturedAt time.Time
}

// Extension returns the file extension matching the frame's MIME type.
func (f Frame) Extension() string {
	switch f.MIMEType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "jpg"
	}
}

// Kind discriminates Result.
type Kind string

const (
	KindIdentified    Kind = "identified"
	KindNotIdentified Kind = "not_identified"
	KindFailed        Kind = "failed"
)

// Failure error kinds.
const (
	ErrorKindExhausted = "analysis-exhausted"
	ErrorKindCancelled = "cancelled"
	ErrorKindInvalid   = "invalid-request"
)

// User-facing messages.
const (
	MessageNotIdentified = "No perfume recognized. Try a clearer photo of the bottle."
	MessageExhausted     = "Temporary analysis failure. Please try again."
	MessageCancelled     = "Analysis cancelled."
)

// Result is the outcome of an analysis. Exactly one of Identified,
// NotIdentified and Failed is set, matching Kind.
type Result struct {
	Kind          Kind            `json:"kind"`
	Identified    *Identification `json:"identified,omitempty"`
	NotIdentified *Rejection      `json:"not_identified,omitempty"`
	Failed        *Failure        `json:"failed,omitempty"`
	Attempts      int             `json:"attempts"`
}

// Message returns the text to show the user for this result.
func (r Result) Message() string {
	switch r.Kind {
	case KindNotIdentified:
		return MessageNotIdentified
	case KindFailed:
		return r.Failed.Message
	default:
		return ""
	}
}

// Rejection is the model's explicit refusal to identify the image.
type Rejection struct {
	Reason string `json:"reason,omitempty"`
}

// Failure describes why the controller gave up.
type Failure struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Cause     error  `json:"-"`
}

// Notes is the olfactory pyramid. All three tiers are always present.
type Notes struct {
	Top   []string `json:"top"`
	Heart []string `json:"heart"`
	Base  []string `json:"base"`
}

// Usage describes when the fragrance suits best.
type Usage struct {
	Occasions []string `json:"occasions"`
	Season    []string `json:"season"`
	TimeOfDay string   `json:"time_of_day"`
}

// Identification is a positively identified perfume.
type Identification struct {
	Brand           string `json:"brand"`
	Name            string `json:"name"`
	Concentration   string `json:"concentration"`
	OlfactoryFamily string `json:"olfactory_family"`
	Notes           Notes  `json:"notes"`
	Usage           Usage  `json:"usage"`
	Description     string `json:"description"`
}

// Normalize replaces nil slices with empty ones so that serialized records
// never carry null tiers.
func (id *Identification) Normalize() {
	for _, s := range []*[]string{&id.Notes.Top, &id.Notes.Heart, &id.Notes.Base, &id.Usage.Occasions, &id.Usage.Season} {
		if *s == nil {
			*s = []string{}
		}
	}
}

func identified(id *Identification, attempts int) Result {
	id.Normalize()
	return Result{Kind: KindIdentified, Identified: id, Attempts: attempts}
}

func notIdentified(reason string, attempts int) Result {
	return Result{Kind: KindNotIdentified, NotIdentified: &Rejection{Reason: reason}, Attempts: attempts}
}

func failed(kind, message string, cause error, attempts int) Result {
	return Result{Kind: KindFailed, Failed: &Failure{ErrorKind: kind, Message: message, Cause: cause}, Attempts: attempts}
}
