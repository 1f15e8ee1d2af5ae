package api

import (
	"net/http"
	"strings"

	"github.com/dunamismax/pixelkit/internal/convert"
)

type instructionsDoc struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Routes      []routeEntry `json:"routes"`
}

type routeEntry struct {
	Method            string       `json:"method"`
	Route             string       `json:"route"`
	Description       string       `json:"description"`
	SupportedFormats  []string     `json:"supported_formats,omitempty"`
	RequestParameters []paramEntry `json:"request_parameters,omitempty"`
}

type paramEntry struct {
	Parameter   string `json:"parameter"`
	Description string `json:"description"`
}

// newInstructions builds the GET / document. browsers is the list reported by
// the user agent source.
func newInstructions(browsers []string) instructionsDoc {
	browserHelp := "Specify a browser type to generate a fake user agent for that browser."
	if len(browsers) > 0 {
		browserHelp += " Options: " + strings.Join(browsers, ", ") + "."
	}

	return instructionsDoc{
		Title:       "Welcome to the Image Conversion and User-Agent Generator App",
		Description: "Available routes:",
		Routes: []routeEntry{
			{
				Method:      http.MethodGet,
				Route:       "/",
				Description: "Shows these instructions.",
			},
			{
				Method:           http.MethodPost,
				Route:            "/convert",
				Description:      "Upload an image to convert to a new format.",
				SupportedFormats: convert.FormatNames(),
				RequestParameters: []paramEntry{
					{Parameter: "file", Description: "The image file to be converted."},
					{Parameter: "format", Description: "Desired output format (" + strings.Join(convert.FormatNames(), ", ") + ")."},
				},
			},
			{
				Method:      http.MethodGet,
				Route:       "/fake_user_agent",
				Description: "Generates a fake user-agent string.",
				RequestParameters: []paramEntry{
					{Parameter: "browser", Description: browserHelp},
				},
			},
		},
	}
}

func (s *Server) handleInstructions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.instructions)
}
