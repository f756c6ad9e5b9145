package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

// Audits

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	audits, err := s.app.Audits.ListAudits(r.Context(), auditdb.AuditFilter{
		Domain: q.Get("domain"),
		Status: auditdb.AuditStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeStoreError(w, "listing audits", err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auditID")
	audit, err := s.app.Audits.GetAudit(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "getting audit", err)
		return
	}
	cats, err := s.app.Audits.GetCategoryResults(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "getting category results", err)
		return
	}
	counts, err := s.app.Audits.GetIssueCounts(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "counting issues", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditDetail{Audit: audit, Categories: cats, Issues: counts})
}

func (s *Server) handleGetCategoryResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auditID")
	if _, err := s.app.Audits.GetAudit(r.Context(), id); err != nil {
		s.writeStoreError(w, "getting audit", err)
		return
	}
	cats, err := s.app.Audits.GetCategoryResults(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "getting category results", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleGetRuleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auditID")
	q := r.URL.Query()
	status := rules.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status query parameter")
		return
	}
	if _, err := s.app.Audits.GetAudit(r.Context(), id); err != nil {
		s.writeStoreError(w, "getting audit", err)
		return
	}
	results, err := s.app.Audits.GetRuleResults(r.Context(), id, auditdb.RuleResultFilter{
		CategoryID: q.Get("category"),
		Status:     status,
	})
	if err != nil {
		s.writeStoreError(w, "getting rule results", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetIssues(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auditID")
	q := r.URL.Query()

	sev := auditdb.Severity(q.Get("severity"))
	switch sev {
	case "", auditdb.SeverityCritical, auditdb.SeverityWarning, auditdb.SeverityInfo:
	default:
		writeError(w, http.StatusBadRequest, "invalid severity query parameter")
		return
	}
	f := auditdb.IssueFilter{Severity: sev, CategoryID: q.Get("category"), RuleID: q.Get("rule")}
	var err error
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"min_priority", &f.MinPriority},
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		if *p.dst, err = queryInt(r, p.name, 0); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if _, err := s.app.Audits.GetAudit(r.Context(), id); err != nil {
		s.writeStoreError(w, "getting audit", err)
		return
	}
	issues, err := s.app.Audits.GetIssues(r.Context(), id, f)
	if err != nil {
		s.writeStoreError(w, "getting issues", err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleGetIssueCounts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auditID")
	if _, err := s.app.Audits.GetAudit(r.Context(), id); err != nil {
		s.writeStoreError(w, "getting audit", err)
		return
	}
	counts, err := s.app.Audits.GetIssueCounts(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "counting issues", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Projects

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	domains, err := s.app.Projects.ListDomains()
	if err != nil {
		s.writeStoreError(w, "listing projects", err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}

// projectStore resolves {domain} without creating a database for unknown
// domains.
func (s *Server) projectStore(w http.ResponseWriter, r *http.Request) (*projectdb.Store, *projectdb.Project, bool) {
	domain, err := projectdb.ExtractDomain(chi.URLParam(r, "domain"))
	if err != nil || !s.app.Projects.Exists(domain) {
		writeError(w, http.StatusNotFound, projectdb.ErrProjectNotFound.Error())
		return nil, nil, false
	}
	store, err := s.app.Projects.ForDomain(domain)
	if err != nil {
		s.writeStoreError(w, "opening project", err)
		return nil, nil, false
	}
	project, err := store.GetProject(r.Context(), domain)
	if err != nil {
		s.writeStoreError(w, "getting project", err)
		return nil, nil, false
	}
	return store, project, true
}

func (s *Server) handleListCrawls(w http.ResponseWriter, r *http.Request) {
	store, project, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	crawls, err := store.ListCrawls(r.Context(), projectdb.CrawlFilter{
		ProjectID: project.ID,
		Status:    projectdb.CrawlStatus(r.URL.Query().Get("status")),
		Limit:     limit,
	})
	if err != nil {
		s.writeStoreError(w, "listing crawls", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectCrawls{Project: project, Crawls: crawls})
}

// crawlStore additionally checks that {crawlID} exists in the project.
func (s *Server) crawlStore(w http.ResponseWriter, r *http.Request) (*projectdb.Store, *projectdb.Crawl, bool) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return nil, nil, false
	}
	crawl, err := store.GetCrawl(r.Context(), chi.URLParam(r, "crawlID"))
	if err != nil {
		s.writeStoreError(w, "getting crawl", err)
		return nil, nil, false
	}
	return store, crawl, true
}

func (s *Server) handleGetCrawl(w http.ResponseWriter, r *http.Request) {
	_, crawl, ok := s.crawlStore(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, crawl)
}

func (s *Server) handleLinkStats(w http.ResponseWriter, r *http.Request) {
	store, crawl, ok := s.crawlStore(w, r)
	if !ok {
		return
	}
	stats, err := store.GetLinkStats(r.Context(), crawl.ID)
	if err != nil {
		s.writeStoreError(w, "link stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBrokenLinks(w http.ResponseWriter, r *http.Request) {
	store, crawl, ok := s.crawlStore(w, r)
	if !ok {
		return
	}
	links, err := store.GetBrokenLinks(r.Context(), crawl.ID)
	if err != nil {
		s.writeStoreError(w, "broken links", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleImageStats(w http.ResponseWriter, r *http.Request) {
	store, crawl, ok := s.crawlStore(w, r)
	if !ok {
		return
	}
	stats, err := store.GetImageStats(r.Context(), crawl.ID)
	if err != nil {
		s.writeStoreError(w, "image stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Catalog and cache

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Categories)
}

func (s *Server) handleLinkCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.LinkCache.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, "link cache stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
