package api

import (
	"context"
	"net/http"
	"strings"

	"helpr/internal/domain"
	"helpr/internal/models"
	"helpr/internal/service"
)

func (s *HTTPServer) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r, models.DefaultPageSize)
	filter := models.UserFilter{Role: models.Role(r.URL.Query().Get("role"))}
	var err error
	if filter.IsActive, err = queryBool(r, "is_active"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.Verified, err = queryBool(r, "verified"); err != nil {
		s.fail(w, r, err)
		return
	}
	items, total, err := s.svc.Admin.ListUsers(r.Context(), currentActor(r), filter, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}

func (s *HTTPServer) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.svc.Admin.GetUser(r.Context(), currentActor(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *HTTPServer) handlePendingHelpers(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r, models.DefaultPageSize)
	items, total, err := s.svc.Admin.PendingHelpers(r.Context(), currentActor(r), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}

type userModerationFunc func(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.User, error)

func (s *HTTPServer) userModeration(fn userModerationFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		var body reasonRequest
		if err := decodeJSON(r, &body, true); err != nil {
			s.fail(w, r, err)
			return
		}
		u, err := fn(r.Context(), currentActor(r), id, strings.TrimSpace(body.Reason), provenance(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, u)
	}
}

func (body serviceRequest) input() service.ServiceInput {
	in := service.ServiceInput{
		Name:        body.Name,
		Description: body.Description,
		Icon:        body.Icon,
		IsActive:    body.IsActive,
	}
	if body.Category != nil {
		c := models.ServiceCategory(*body.Category)
		in.Category = &c
	}
	return in
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var body serviceRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	svc, err := s.svc.Catalog.Create(r.Context(), currentActor(r), body.input(), provenance(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, svc)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body serviceRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	svc, err := s.svc.Catalog.Update(r.Context(), currentActor(r), id, body.input(), provenance(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, svc)
}

func auditFilterFrom(r *http.Request) (models.AuditFilter, error) {
	q := r.URL.Query()
	filter := models.AuditFilter{
		ActionType: models.ActionType(strings.ToUpper(q.Get("action_type"))),
		TargetType: models.TargetType(q.Get("target_type")),
	}
	var err error
	if filter.AdminID, err = queryID(r, "admin_id"); err != nil {
		return filter, err
	}
	if filter.TargetID, err = queryID(r, "target_id"); err != nil {
		return filter, err
	}
	if filter.From, err = queryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (s *HTTPServer) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := pageFrom(r, models.DefaultAuditPageSize)
	items, total, err := s.svc.Audit.List(r.Context(), filter, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}
