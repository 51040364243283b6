package imagegen

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// AspectRatio is the output shape requested from the remote API.
type AspectRatio string

// Supported aspect ratios, named as the ImageFX API expects them.
const (
	AspectSquare      AspectRatio = "IMAGE_ASPECT_RATIO_SQUARE"
	AspectPortrait    AspectRatio = "IMAGE_ASPECT_RATIO_PORTRAIT"
	AspectLandscape   AspectRatio = "IMAGE_ASPECT_RATIO_LANDSCAPE"
	AspectPortrait34  AspectRatio = "IMAGE_ASPECT_RATIO_PORTRAIT_THREE_FOUR"
	AspectLandscape43 AspectRatio = "IMAGE_ASPECT_RATIO_LANDSCAPE_FOUR_THREE"
)

var aspectAliases = map[string]AspectRatio{
	"SQUARE":        AspectSquare,
	"1:1":           AspectSquare,
	"PORTRAIT":      AspectPortrait,
	"9:16":          AspectPortrait,
	"LANDSCAPE":     AspectLandscape,
	"16:9":          AspectLandscape,
	"PORTRAIT_3_4":  AspectPortrait34,
	"3:4":           AspectPortrait34,
	"LANDSCAPE_4_3": AspectLandscape43,
	"4:3":           AspectLandscape43,
}

// ParseAspectRatio accepts the short names (SQUARE, PORTRAIT, LANDSCAPE,
// PORTRAIT_3_4, LANDSCAPE_4_3), ratio notation ("16:9") or the full API
// constant, case-insensitively.
func ParseAspectRatio(s string) (AspectRatio, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if ar, ok := aspectAliases[key]; ok {
		return ar, nil
	}
	for _, ar := range aspectAliases {
		if string(ar) == key {
			return ar, nil
		}
	}
	return "", fmt.Errorf("imagegen: unknown aspect ratio %q", s)
}

// OpenAISize maps the aspect ratio onto a DALL-E 3 size string.
func (a AspectRatio) OpenAISize() string {
	switch a {
	case AspectPortrait, AspectPortrait34:
		return "1024x1792"
	case AspectLandscape, AspectLandscape43:
		return "1792x1024"
	default:
		return "1024x1024"
	}
}

// Request describes one generation call.
//
// A nil Seed means "pick one per attempt", so retries against another token
// explore a different sample. An empty ProjectID is filled once by Prepare
// and then reused for every attempt of the same request.
type Request struct {
	Prompt      string
	AspectRatio AspectRatio
	Seed        *int64
	ProjectID   string
}

// NewRequest returns a request with a fresh project id.
func NewRequest(prompt string, aspect AspectRatio) Request {
	r := Request{Prompt: prompt, AspectRatio: aspect}
	r.Prepare()
	return r
}

// Prepare fills in the project id if it is missing.
func (r *Request) Prepare() {
	if r.ProjectID == "" {
		r.ProjectID = uuid.NewString()
	}
	if r.AspectRatio == "" {
		r.AspectRatio = AspectLandscape
	}
}

// SeedForAttempt returns the fixed seed, or a fresh random one.
func (r Request) SeedForAttempt() int64 {
	if r.Seed != nil {
		return *r.Seed
	}
	return rand.Int64N(1_000_000)
}
