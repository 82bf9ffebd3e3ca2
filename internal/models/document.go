package models

import "time"

// Document is a meeting file discovered by the harvester.
type Document struct {
	URL         string
	Title       string
	MeetingDate time.Time
	FileType    FileType
	Metadata    map[string]interface{}
}

// HasDate reports whether a meeting date could be inferred.
func (d Document) HasDate() bool {
	return !d.MeetingDate.IsZero()
}
