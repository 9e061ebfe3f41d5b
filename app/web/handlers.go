package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"

	"github.com/umputun/apptrack/app/domain"
	"github.com/umputun/apptrack/app/fetcher"
	"github.com/umputun/apptrack/app/query"
	"github.com/umputun/apptrack/app/repo"
)

// application is the JSON shape of one record as the API exposes it
type application struct {
	ID                     string     `json:"id"`
	JobTitle               string     `json:"job_title"`
	CompanyName            string     `json:"company_name"`
	ApplicationDate        time.Time  `json:"application_date"`
	Status                 string     `json:"status"`
	Location               string     `json:"location"`
	LocationKind           string     `json:"location_kind"`
	ApplicationLink        string     `json:"application_link,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
	JobDescription         string     `json:"job_description,omitempty"`
	DatePosted             *time.Time `json:"date_posted,omitempty"`
	SalaryRange            string     `json:"salary_range,omitempty"`
	RequiredQualifications string     `json:"required_qualifications,omitempty"`
	CompanyDescription     string     `json:"company_description,omitempty"`
}

func toAPI(app domain.JobApplication) application {
	return application{
		ID:                     app.ID,
		JobTitle:               app.JobTitle,
		CompanyName:            app.CompanyName,
		ApplicationDate:        app.ApplicationDate,
		Status:                 app.Status.String(),
		Location:               app.Location.DisplayString(),
		LocationKind:           app.Location.Kind.String(),
		ApplicationLink:        app.ApplicationLink,
		Notes:                  app.Notes,
		JobDescription:         app.JobDescription,
		DatePosted:             app.DatePosted,
		SalaryRange:            app.SalaryRange,
		RequiredQualifications: app.RequiredQualifications,
		CompanyDescription:     app.CompanyDescription,
	}
}

// GET /api/v1/applications - filtered and sorted view of the collection.
// Query params: search, status (repeatable), location (repeatable),
// title (repeatable), company (repeatable), from, to (2006-01-02),
// sort, order.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := query.Filters{
		Search:    q.Get("search"),
		Locations: q["location"],
		Titles:    q["title"],
		Companies: q["company"],
	}

	for _, v := range q["status"] {
		st, err := domain.ParseStatus(v)
		if err != nil {
			sendErrorJSON(w, r, http.StatusBadRequest, err, "invalid status filter")
			return
		}
		filters.Statuses = append(filters.Statuses, st)
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			sendErrorJSON(w, r, http.StatusBadRequest, err, "invalid from date")
			return
		}
		filters.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			sendErrorJSON(w, r, http.StatusBadRequest, err, "invalid to date")
			return
		}
		to = to.Add(24*time.Hour - time.Nanosecond) // inclusive through the end of the day
		filters.To = &to
	}

	key := query.SortByDate
	if v := q.Get("sort"); v != "" {
		var err error
		if key, err = query.ParseSortKey(v); err != nil {
			sendErrorJSON(w, r, http.StatusBadRequest, err, "invalid sort key")
			return
		}
	}
	order, err := query.ParseOrder(q.Get("order"))
	if err != nil {
		sendErrorJSON(w, r, http.StatusBadRequest, err, "invalid sort order")
		return
	}

	apps := query.Apply(s.repo.All(), filters, key, order)
	res := make([]application, 0, len(apps))
	for _, app := range apps {
		res = append(res, toAPI(app))
	}
	renderJSON(w, res)
}

// POST /api/v1/applications - create a new record with defaults, optionally
// prefilled from the body.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobTitle        string `json:"job_title"`
		ApplicationLink string `json:"application_link"`
		JobDescription  string `json:"job_description"`
	}
	// an empty body is fine, anything else malformed is a client error
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendErrorJSON(w, r, http.StatusBadRequest, err, "failed to parse request")
		return
	}

	id := s.repo.Add(repo.Prefill{
		JobTitle:        req.JobTitle,
		ApplicationLink: req.ApplicationLink,
		JobDescription:  req.JobDescription,
	})

	app, _ := s.repo.Get(id)
	w.WriteHeader(http.StatusCreated)
	renderJSON(w, toAPI(app))
}

// PUT /api/v1/applications/{id} - full update of an existing record
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req application
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorJSON(w, r, http.StatusBadRequest, err, "failed to parse request")
		return
	}

	app := domain.JobApplication{
		ID:                     id,
		JobTitle:               req.JobTitle,
		CompanyName:            req.CompanyName,
		ApplicationDate:        req.ApplicationDate,
		ApplicationLink:        req.ApplicationLink,
		Notes:                  req.Notes,
		JobDescription:         req.JobDescription,
		DatePosted:             req.DatePosted,
		SalaryRange:            req.SalaryRange,
		RequiredQualifications: req.RequiredQualifications,
		CompanyDescription:     req.CompanyDescription,
	}
	if app.ApplicationDate.IsZero() {
		app.ApplicationDate = time.Now()
	}

	st, err := domain.ParseStatus(req.Status)
	if err != nil {
		sendErrorJSON(w, r, http.StatusBadRequest, err, "invalid status")
		return
	}
	app.Status = st
	app.Location = domain.MakeLocation(req.LocationKind, req.Location)

	if err := s.repo.Update(app); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			sendErrorJSON(w, r, http.StatusNotFound, err, "application not found")
			return
		}
		sendErrorJSON(w, r, http.StatusInternalServerError, err, "failed to update application")
		return
	}
	renderJSON(w, toAPI(app))
}

// DELETE /api/v1/applications/{id} - remove a record, absent ids succeed
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.repo.Delete(id); err != nil {
		sendErrorJSON(w, r, http.StatusInternalServerError, err, "failed to delete application")
		return
	}
	renderJSON(w, rest.JSON{"deleted": id})
}

// POST /api/v1/import - fetch a posting page and create a prefilled record
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorJSON(w, r, http.StatusBadRequest, err, "failed to parse request")
		return
	}
	if s.fetcher == nil {
		sendErrorJSON(w, r, http.StatusNotImplemented, errors.New("fetcher disabled"), "import not available")
		return
	}

	text, err := s.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, fetcher.ErrInvalidURL):
			code = http.StatusBadRequest
		case errors.Is(err, fetcher.ErrTimeout):
			code = http.StatusGatewayTimeout
		}
		sendErrorJSON(w, r, code, err, fetcher.UserMessage(err))
		return
	}

	id := s.repo.Add(repo.Prefill{ApplicationLink: req.URL, JobDescription: text})
	app, _ := s.repo.Get(id)
	w.WriteHeader(http.StatusCreated)
	renderJSON(w, toAPI(app))
}

// GET /api/v1/meta - statuses with colors and the distinct filter choices
// derived from the current collection.
func (s *Server) handleMeta(w http.ResponseWriter, _ *http.Request) {
	type statusInfo struct {
		Name   string `json:"name"`
		Fill   string `json:"fill"`
		Accent string `json:"accent"`
	}

	statuses := make([]statusInfo, 0, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		statuses = append(statuses, statusInfo{Name: st.String(), Fill: st.FillColor(), Accent: st.AccentColor()})
	}

	apps := s.repo.All()
	renderJSON(w, rest.JSON{
		"statuses":  statuses,
		"locations": query.Locations(apps),
		"titles":    query.Titles(apps),
		"companies": query.Companies(apps),
	})
}

// GET /api/v1/columns - effective width of every table column
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		sendErrorJSON(w, r, http.StatusNotImplemented, errors.New("prefs disabled"), "column prefs not available")
		return
	}
	renderJSON(w, s.prefs.Widths())
}

// PUT /api/v1/columns/{id} - store a column width
func (s *Server) handleSetColumn(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		sendErrorJSON(w, r, http.StatusNotImplemented, errors.New("prefs disabled"), "column prefs not available")
		return
	}

	var req struct {
		Width float64 `json:"width"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorJSON(w, r, http.StatusBadRequest, err, "failed to parse request")
		return
	}

	column := r.PathValue("id")
	if err := s.prefs.SetWidth(column, req.Width); err != nil {
		sendErrorJSON(w, r, http.StatusInternalServerError, err, "failed to save column width")
		return
	}
	renderJSON(w, rest.JSON{"column": column, "width": s.prefs.Widths()[column]})
}

// GET / - server-rendered dashboard table
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	apps := query.Apply(s.repo.All(), query.Filters{}, query.SortByDate, query.Desc)

	type row struct {
		App      application
		Fill     string
		Accent   string
		DateText string
	}
	rows := make([]row, 0, len(apps))
	for _, app := range apps {
		rows = append(rows, row{
			App:      toAPI(app),
			Fill:     app.Status.FillColor(),
			Accent:   app.Status.AccentColor(),
			DateText: app.ApplicationDate.Format("Jan 2, 2006"),
		})
	}

	widths := map[string]float64{}
	if s.prefs != nil {
		widths = s.prefs.Widths()
	}

	data := struct {
		Rows    []row
		Widths  map[string]float64
		Version string
	}{Rows: rows, Widths: widths, Version: s.version}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Printf("[WARN] failed to render index: %v", err)
	}
}

func renderJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to send response: %v", err)
	}
}

func sendErrorJSON(w http.ResponseWriter, r *http.Request, code int, err error, details string) {
	log.Printf("[DEBUG] %s %s returned %d: %s (%v)", r.Method, r.URL.Path, code, details, err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if encErr := json.NewEncoder(w).Encode(rest.JSON{"error": err.Error(), "details": details}); encErr != nil {
		log.Printf("[WARN] failed to send error response: %v", encErr)
	}
}
