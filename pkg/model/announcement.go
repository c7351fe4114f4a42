package model

import "strings"

// TextType tells the synthesis service how to interpret the submitted text.
type TextType string

const (
	TextTypeSSML  TextType = "ssml"
	TextTypePlain TextType = "text"
)

// Announcement is a single unit of spoken navigation guidance.
type Announcement struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"` // plain text
	SSML string `json:"ssml,omitempty"` // markup

	// DistanceAlongGeometry is the route distance (meters from the start)
	// at which the instruction source emits the announcement.
	DistanceAlongGeometry float64 `json:"distance_along_geometry,omitempty"`
}

// IsEmpty reports whether the announcement carries nothing to speak.
// A nil announcement is empty.
func (a *Announcement) IsEmpty() bool {
	if a == nil {
		return true
	}
	return strings.TrimSpace(a.Text) == "" && strings.TrimSpace(a.SSML) == ""
}

// Label returns a short human readable form for logs.
func (a *Announcement) Label() string {
	if a == nil {
		return ""
	}
	if a.Text != "" {
		return a.Text
	}
	return a.SSML
}
