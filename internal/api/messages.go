package api

import (
	"net/http"

	"helpr/internal/models"
	"helpr/internal/service"
)

func (s *HTTPServer) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r, "bookingId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := pageFrom(r, models.DefaultMessagePageSize)
	items, total, err := s.svc.Messages.History(r.Context(), currentActor(r), bookingID, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, items, page, total)
}

// handleSendMessage is the REST fallback for clients without a socket. The
// message is broadcast exactly as if sent in the room.
func (s *HTTPServer) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r, "bookingId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body sendMessageRequest
	if err := decodeJSON(r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.svc.Messages.Send(r.Context(), currentActor(r), bookingID, service.SendInput{
		Content:     body.Content,
		MessageType: models.MessageType(body.MessageType),
		ImageURL:    body.ImageURL,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r, "bookingId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body markReadRequest
	if err := decodeJSON(r, &body, true); err != nil {
		s.fail(w, r, err)
		return
	}
	marked, err := s.svc.Messages.MarkRead(r.Context(), currentActor(r), bookingID, body.MessageIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if marked == nil {
		marked = []int64{}
	}
	writeData(w, http.StatusOK, map[string]any{"message_ids": marked, "count": len(marked)})
}

func (s *HTTPServer) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r, "bookingId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	count, err := s.svc.Messages.UnreadCount(r.Context(), currentActor(r), bookingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"booking_id": bookingID, "count": count})
}
