// Package domain holds the job application record and its enumerations.
// Everything here is pure data and pure functions, no I/O.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the stage of a job application. The declaration order
// defines the rank used for status-based sorting, it is not alphabetical.
type Status int

// application statuses, ordered by progression rank
const (
	StatusIdentified Status = iota
	StatusApplied
	StatusInterviewing
	StatusAccepted
	StatusRejected
	StatusArchived
)

// DefaultStatus is what unknown or missing persisted statuses degrade to.
const DefaultStatus = StatusApplied

var statusNames = [...]string{
	StatusIdentified:   "Identified",
	StatusApplied:      "Applied",
	StatusInterviewing: "Interviewing",
	StatusAccepted:     "Accepted",
	StatusRejected:     "Rejected",
	StatusArchived:     "Archived",
}

// statusColors holds presentation attributes per status: background fill
// and accent (text/border) colors as hex strings for the rendering layer.
var statusColors = [...]struct{ fill, accent string }{
	StatusIdentified:   {"#E8EAED", "#5F6368"},
	StatusApplied:      {"#E3F2FD", "#1E88E5"},
	StatusInterviewing: {"#FFF3E0", "#FB8C00"},
	StatusAccepted:     {"#E8F5E9", "#43A047"},
	StatusRejected:     {"#FFEBEE", "#E53935"},
	StatusArchived:     {"#F5F5F5", "#9E9E9E"},
}

// AllStatuses returns every status in rank order.
func AllStatuses() []Status {
	return []Status{StatusIdentified, StatusApplied, StatusInterviewing, StatusAccepted, StatusRejected, StatusArchived}
}

// DefaultActiveStatuses returns the subset shown when no status filter is set.
// Terminal statuses (Rejected, Archived) are excluded.
func DefaultActiveStatuses() []Status {
	return []Status{StatusIdentified, StatusApplied, StatusInterviewing, StatusAccepted}
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Rank returns the fixed sort rank of the status.
func (s Status) Rank() int { return int(s) }

// FillColor returns the background color for status presentation.
func (s Status) FillColor() string {
	if s < 0 || int(s) >= len(statusColors) {
		return statusColors[DefaultStatus].fill
	}
	return statusColors[s].fill
}

// AccentColor returns the text/border color for status presentation.
func (s Status) AccentColor() string {
	if s < 0 || int(s) >= len(statusColors) {
		return statusColors[DefaultStatus].accent
	}
	return statusColors[s].accent
}

// ParseStatus converts a string to Status, case-insensitive.
func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(v, name) {
			return Status(i), nil
		}
	}
	return DefaultStatus, fmt.Errorf("unknown status %q", v)
}

// LocationKind is the tag of the Location union.
type LocationKind int

// location kinds as persisted in the kind tag
const (
	LocationRemote LocationKind = iota
	LocationCity
	LocationOther
)

var locationKindNames = [...]string{
	LocationRemote: "remote",
	LocationCity:   "city",
	LocationOther:  "other",
}

func (k LocationKind) String() string {
	if k < 0 || int(k) >= len(locationKindNames) {
		return locationKindNames[LocationRemote]
	}
	return locationKindNames[k]
}

// ParseLocationKind converts a stored kind tag to LocationKind.
func ParseLocationKind(v string) (LocationKind, error) {
	for i, name := range locationKindNames {
		if strings.EqualFold(v, name) {
			return LocationKind(i), nil
		}
	}
	return LocationRemote, fmt.Errorf("unknown location kind %q", v)
}

// Location is a tagged union: Remote, City(name) or Other(freeform).
// Equality is structural, Name is empty for Remote.
type Location struct {
	Kind LocationKind
	Name string
}

// Remote returns the remote location value.
func Remote() Location { return Location{Kind: LocationRemote} }

// City returns a city location with the given name.
func City(name string) Location { return Location{Kind: LocationCity, Name: name} }

// Other returns a freeform location with the given text.
func Other(name string) Location { return Location{Kind: LocationOther, Name: name} }

// DisplayString yields "Remote" for remote locations and the name otherwise.
func (l Location) DisplayString() string {
	if l.Kind == LocationRemote {
		return "Remote"
	}
	return l.Name
}

// ParseLocation builds a Location from a bare display string. Empty input and
// "remote" (any case) map to Remote, anything else to City. This is lossy on
// Other vs City, the explicit kind tag stored with new records is what makes
// the round trip exact. See MakeLocation.
func ParseLocation(s string) Location {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "remote") {
		return Remote()
	}
	return City(s)
}

// MakeLocation builds a Location from a display string plus the stored kind
// tag, falling back to ParseLocation inference when the tag is unusable.
func MakeLocation(kindTag, display string) Location {
	kind, err := ParseLocationKind(kindTag)
	if err != nil {
		return ParseLocation(display)
	}
	switch kind {
	case LocationRemote:
		return Remote()
	case LocationCity:
		return City(display)
	case LocationOther:
		return Other(display)
	}
	return ParseLocation(display)
}

// JobApplication is the tracked record. ID is assigned at creation and never
// reused, all other fields are user-editable. The pointer/extended fields are
// absent for records created before they were introduced.
type JobApplication struct {
	ID              string
	JobTitle        string
	CompanyName     string
	ApplicationDate time.Time
	Status          Status
	Location        Location
	ApplicationLink string
	Notes           string

	// extended fields, nullable for older records
	JobDescription         string
	DatePosted             *time.Time
	SalaryRange            string
	RequiredQualifications string
	CompanyDescription     string
}
