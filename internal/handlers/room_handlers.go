package handlers

import (
	"net/http"

	"plainchat/internal/models"
	"plainchat/internal/services"
	"plainchat/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RoomHandlers serves /api/group. Rooms are called groups on the wire.
type RoomHandlers struct {
	roomService *services.RoomService
}

func NewRoomHandlers(roomService *services.RoomService) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req models.GroupPayload
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), userID(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("Created room %s (%s)", room.Name, room.ID)
	writeJSON(w, http.StatusOK, room.Name)
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomService.ListUserRooms(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	room, err := h.roomService.DeleteRoom(r.Context(), userID(r), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("Deleted room %s (%s)", room.Name, room.ID)
	writeJSON(w, http.StatusOK, room.Name)
}

func (h *RoomHandlers) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	members, err := h.roomService.GetRoomMembers(r.Context(), userID(r), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *RoomHandlers) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	messages, err := h.roomService.GetRoomMessages(r.Context(), userID(r), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) roomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := groupID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return uuid.Nil, false
	}
	return id, true
}
