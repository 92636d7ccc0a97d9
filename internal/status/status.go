// Package status maps request lifecycle states to badge styles and formats
// request timestamps for the viewer.
package status

import (
	"strings"
	"time"

	"github.com/xeonx/timeago"
	"golang.org/x/text/language"

	"github.com/dukerupert/gasportal/internal/model"
)

type Color string

const (
	ColorSuccess Color = "success"
	ColorWarning Color = "warning"
	ColorGray    Color = "gray"
	ColorAccent  Color = "accent"
)

// ColorFor lowercases status and matches it exactly against the known
// states. Anything else, including "in_progress" or padded strings, gets
// the accent color.
func ColorFor(status string) Color {
	switch strings.ToLower(status) {
	case "completed":
		return ColorSuccess
	case "in progress":
		return ColorWarning
	case "pending":
		return ColorGray
	default:
		return ColorAccent
	}
}

// Class returns the badge CSS classes.
func (c Color) Class() string {
	switch c {
	case ColorSuccess:
		return "bg-utility-success text-white"
	case ColorWarning:
		return "bg-utility-warning text-black"
	case ColorGray:
		return "bg-utility-gray text-white"
	default:
		return "bg-utility-accent text-white"
	}
}

var (
	supported = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Japanese,
	}
	dateLayouts = []string{
		"1/2/2006",
		"02/01/2006",
		"2.1.2006",
		"02/01/2006",
		"2/1/2006",
		"2006/1/2",
	}
	matcher = language.NewMatcher(supported)
)

// Locale picks the supported locale closest to an Accept-Language header.
// An empty or unparseable header yields en-US.
func Locale(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// FormatDate renders t as a short date the way the locale writes it.
func FormatDate(t time.Time, locale language.Tag) string {
	for i, tag := range supported {
		if tag == locale {
			return t.Format(dateLayouts[i])
		}
	}
	return t.Format(dateLayouts[0])
}

// Relative renders t relative to now, e.g. "3 hours ago".
func Relative(t, now time.Time) string {
	return timeago.English.FormatReference(t, now)
}

// ExampleID is the request shown when no backend is wired.
const ExampleID = "SR-2024-001"

// Example returns the placeholder request rendered in mock mode.
func Example() model.ServiceRequest {
	lastUpdated := time.Date(2024, 2, 20, 10, 0, 0, 0, time.Local)
	estimated := time.Date(2024, 2, 21, 14, 0, 0, 0, time.Local)
	return model.ServiceRequest{
		ID:                  ExampleID,
		RequestType:         "Gas Leak Investigation",
		Status:              "In Progress",
		LastUpdated:         &lastUpdated,
		EstimatedCompletion: &estimated,
	}
}
