// Package query derives the filtered and sorted view the UI renders. It is a
// pure function of (collection snapshot, predicate state): filtering
// preserves the relative order of the input, sorting is stable with ties
// broken by that order. The collection is small (tens to low hundreds of
// records), everything is re-evaluated per call, no indexing.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/umputun/apptrack/app/domain"
)

// SortKey selects the active sort column
type SortKey int

// sort keys, one per visible column
const (
	SortByDate SortKey = iota // default
	SortByTitle
	SortByCompany
	SortByStatus
	SortByLocation
	SortByLink
	SortByNotes
)

var sortKeyNames = [...]string{
	SortByDate:     "date",
	SortByTitle:    "title",
	SortByCompany:  "company",
	SortByStatus:   "status",
	SortByLocation: "location",
	SortByLink:     "link",
	SortByNotes:    "notes",
}

func (k SortKey) String() string {
	if k < 0 || int(k) >= len(sortKeyNames) {
		return sortKeyNames[SortByDate]
	}
	return sortKeyNames[k]
}

// ParseSortKey converts a string to SortKey
func ParseSortKey(v string) (SortKey, error) {
	for i, name := range sortKeyNames {
		if strings.EqualFold(v, name) {
			return SortKey(i), nil
		}
	}
	return SortByDate, fmt.Errorf("unknown sort key %q", v)
}

// Order is the sort direction
type Order int

// sort directions
const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// ParseOrder converts a string to Order
func ParseOrder(v string) (Order, error) {
	switch strings.ToLower(v) {
	case "asc", "":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return Asc, fmt.Errorf("unknown sort order %q", v)
}

// SortState holds the active sort key and direction with the selection rules
// the UI follows: re-selecting the active key flips direction, switching to
// another key resets to ascending.
type SortState struct {
	Key   SortKey
	Order Order
}

// Select applies a column header click to the state
func (s *SortState) Select(key SortKey) {
	if s.Key == key {
		if s.Order == Asc {
			s.Order = Desc
		} else {
			s.Order = Asc
		}
		return
	}
	s.Key = key
	s.Order = Asc
}

// Filters is the predicate state. Predicates are conjunctive, a record must
// satisfy all active ones. Empty sets match everything, except Statuses where
// the empty set means the default active view (non-terminal statuses).
type Filters struct {
	Search    string
	Statuses  []domain.Status
	Locations []string // display strings
	Titles    []string
	Companies []string
	From      *time.Time // inclusive
	To        *time.Time // inclusive
}

// Apply filters and sorts a collection snapshot. The input is not modified.
func Apply(apps []domain.JobApplication, f Filters, key SortKey, order Order) []domain.JobApplication {
	res := filter(apps, f)
	sortApps(res, key, order)
	return res
}

// filter keeps surviving elements in their original relative order
func filter(apps []domain.JobApplication, f Filters) []domain.JobApplication {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = domain.DefaultActiveStatuses()
	}
	statusSet := make(map[domain.Status]bool, len(statuses))
	for _, st := range statuses {
		statusSet[st] = true
	}

	locSet := toSet(f.Locations)
	titleSet := toSet(f.Titles)
	companySet := toSet(f.Companies)
	from, to := normalizeRange(f.From, f.To)
	search := strings.ToLower(strings.TrimSpace(f.Search))

	res := make([]domain.JobApplication, 0, len(apps))
	for _, app := range apps {
		if !statusSet[app.Status] {
			continue
		}
		if len(locSet) > 0 && !locSet[app.Location.DisplayString()] {
			continue
		}
		if len(titleSet) > 0 && !titleSet[app.JobTitle] {
			continue
		}
		if len(companySet) > 0 && !companySet[app.CompanyName] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(app.JobTitle), search) &&
			!strings.Contains(strings.ToLower(app.CompanyName), search) {
			continue
		}
		if from != nil && app.ApplicationDate.Before(*from) {
			continue
		}
		if to != nil && app.ApplicationDate.After(*to) {
			continue
		}
		res = append(res, app)
	}
	return res
}

// sortApps sorts in place, stable so equal keys keep filter order. Link and
// notes have no defined comparison and leave the order untouched.
func sortApps(apps []domain.JobApplication, key SortKey, order Order) {
	if key == SortByLink || key == SortByNotes {
		return
	}

	coll := collate.New(language.Und, collate.Loose)
	textCmp := func(a, b string) int { return coll.CompareString(a, b) }

	var cmp func(a, b domain.JobApplication) int
	switch key {
	case SortByTitle:
		cmp = func(a, b domain.JobApplication) int { return textCmp(a.JobTitle, b.JobTitle) }
	case SortByCompany:
		cmp = func(a, b domain.JobApplication) int { return textCmp(a.CompanyName, b.CompanyName) }
	case SortByDate:
		cmp = func(a, b domain.JobApplication) int { return a.ApplicationDate.Compare(b.ApplicationDate) }
	case SortByStatus:
		// rank table order, never the status label
		cmp = func(a, b domain.JobApplication) int { return a.Status.Rank() - b.Status.Rank() }
	case SortByLocation:
		cmp = func(a, b domain.JobApplication) int { return textCmp(a.Location.DisplayString(), b.Location.DisplayString()) }
	default:
		return
	}

	sort.SliceStable(apps, func(i, j int) bool {
		c := cmp(apps[i], apps[j])
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}

// normalizeRange treats a violated range invariant (start after end) as no
// constraint at all. The UI clamps on input, this is the defensive backstop.
func normalizeRange(from, to *time.Time) (f, t *time.Time) {
	if from != nil && to != nil && from.After(*to) {
		return nil, nil
	}
	return from, to
}

// ClampRange is the input-correction policy for date pickers: moving one
// bound past the other drags the violated bound along.
func ClampRange(from, to time.Time, movedFrom bool) (f, t time.Time) {
	if !from.After(to) {
		return from, to
	}
	if movedFrom {
		return to, to // start moved past end, clamp start
	}
	return from, from // end moved before start, clamp end
}

// Locations returns the unique location display strings of a snapshot,
// sorted, for building the filter choices.
func Locations(apps []domain.JobApplication) []string {
	return uniqueSorted(apps, func(app domain.JobApplication) string { return app.Location.DisplayString() })
}

// Titles returns the unique job titles of a snapshot, sorted.
func Titles(apps []domain.JobApplication) []string {
	return uniqueSorted(apps, func(app domain.JobApplication) string { return app.JobTitle })
}

// Companies returns the unique company names of a snapshot, sorted.
func Companies(apps []domain.JobApplication) []string {
	return uniqueSorted(apps, func(app domain.JobApplication) string { return app.CompanyName })
}

func uniqueSorted(apps []domain.JobApplication, get func(domain.JobApplication) string) []string {
	seen := map[string]bool{}
	res := []string{}
	for _, app := range apps {
		v := get(app)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		res = append(res, v)
	}
	sort.Strings(res)
	return res
}

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	res := make(map[string]bool, len(vals))
	for _, v := range vals {
		res[v] = true
	}
	return res
}
