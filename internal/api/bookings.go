package api

import (
	"context"
	"net/http"
	"strings"

	"helpr/internal/domain"
	"helpr/internal/models"
	"helpr/internal/service"
)

func currentActor(r *http.Request) domain.Actor {
	actor, _ := actorFrom(r.Context())
	return actor
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	in := service.CreateBookingInput{
		ServiceID:         body.ServiceID,
		Description:       body.Description,
		Address:           body.Location.Address,
		ScheduledAt:       body.ScheduledAt,
		EstimatedDuration: body.EstimatedDuration,
	}
	if c := body.Location.Coordinates; c != nil {
		lat, lng := c.Lat, c.Lng
		in.Lat, in.Lng = &lat, &lng
	}
	b, err := s.svc.Bookings.Create(r.Context(), currentActor(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleListMyBookings(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r, models.DefaultPageSize)
	status := models.BookingStatus(strings.ToUpper(r.URL.Query().Get("status")))
	items, total, err := s.svc.Bookings.ListMine(r.Context(), currentActor(r), status, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}

func (s *HTTPServer) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r, models.DefaultPageSize)
	category := models.ServiceCategory(r.URL.Query().Get("category"))
	items, total, err := s.svc.Bookings.ListAvailable(r.Context(), currentActor(r), category, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.svc.Bookings.Get(r.Context(), currentActor(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, b)
}

type bookingTransition func(ctx context.Context, actor domain.Actor, id int64) (*models.Booking, error)

// bookingAction adapts a participant transition to a handler.
func (s *HTTPServer) bookingAction(fn bookingTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		b, err := fn(r.Context(), currentActor(r), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, b)
	}
}

type adminBookingTransition func(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.Booking, error)

func (s *HTTPServer) adminBookingAction(fn adminBookingTransition) http.HandlerFunc {
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
		b, err := fn(r.Context(), currentActor(r), id, strings.TrimSpace(body.Reason), provenance(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, b)
	}
}

func (s *HTTPServer) handleRateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body rateRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.svc.Bookings.Rate(r.Context(), currentActor(r), id, body.Rating, body.Review)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, b)
}

func (s *HTTPServer) handleAdminListBookings(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r, models.DefaultPageSize)
	status := models.BookingStatus(strings.ToUpper(r.URL.Query().Get("status")))
	items, total, err := s.svc.Bookings.ListAll(r.Context(), currentActor(r), status, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}
