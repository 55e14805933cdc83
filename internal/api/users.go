package api

import (
	"net/http"
	"strings"

	"helpr/internal/models"
	"helpr/internal/service"
)

func (s *HTTPServer) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var body requestOTPRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	challenge, err := s.svc.Auth.RequestOTP(r.Context(), body.Phone)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, challenge)
}

func (s *HTTPServer) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body verifyOTPRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.svc.Auth.VerifyOTP(r.Context(), service.VerifyOTPInput{
		Phone: body.Phone,
		Code:  body.Code,
		Name:  strings.TrimSpace(body.Name),
		Role:  models.Role(body.Role),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	tokens, err := s.svc.Auth.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tokens)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.Logout(r.Context(), currentActor(r).ID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Users.Me(r.Context(), currentActor(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var body updateMeRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.svc.Users.UpdateMe(r.Context(), currentActor(r), service.ProfileUpdate{
		Name:     body.Name,
		Bio:      body.Bio,
		Services: categories(body.Services),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *HTTPServer) handleListHelpers(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r, models.DefaultPageSize)
	category := models.ServiceCategory(r.URL.Query().Get("category"))
	items, total, err := s.svc.Users.ListHelpers(r.Context(), category, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}

func (s *HTTPServer) handleGetHelper(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.svc.Users.GetHelper(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	category := models.ServiceCategory(r.URL.Query().Get("category"))
	writeData(w, http.StatusOK, s.svc.Catalog.ListActive(r.Context(), category))
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	svc, err := s.svc.Catalog.GetActive(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, svc)
}
