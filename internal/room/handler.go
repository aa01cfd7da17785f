package room

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/party-jam-system/internal/queue"
	"github.com/party-jam-system/internal/spotify"
	"github.com/party-jam-system/internal/token"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires the room endpoints. Guest operations are open;
// creating a room and driving playback require the host cookie.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, hostAuth gin.HandlerFunc) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("", hostAuth, h.createRoom)
		rooms.GET("/join/:code", h.joinRoom)
		rooms.GET("/:code/search", h.search)
		rooms.POST("/:code/songs", h.addSong)
		rooms.POST("/:code/vote", h.vote)
		rooms.GET("/:code/queue", h.getQueue)
		rooms.POST("/:code/play-next", hostAuth, h.playNext)
	}
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hostID, err := uuid.Parse(c.GetString("host_id")) // set by auth middleware
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid host session"})
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), hostID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "created",
		"room_code": room.Code,
		"room_id":   room.ID,
	})
}

func (h *Handler) joinRoom(c *gin.Context) {
	info, err := h.service.JoinRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"room_id":   info.RoomID,
		"room_name": info.RoomName,
		"host_name": info.HostName,
	})
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	tracks, err := h.service.Search(c.Request.Context(), c.Param("code"), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tracks)
}

type AddSongRequest struct {
	GuestID  string `json:"guest_id" binding:"required"`
	TrackID  string `json:"track_id" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Artist   string `json:"artist" binding:"required"`
	ImageURL string `json:"image_url"`
}

func (h *Handler) addSong(c *gin.Context) {
	var req AddSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	track := spotify.Track{
		ID:       req.TrackID,
		Title:    req.Title,
		Artist:   req.Artist,
		ImageURL: req.ImageURL,
	}

	item, existed, err := h.service.AddSong(c.Request.Context(), c.Param("code"), req.GuestID, track)
	if err != nil {
		respondError(c, err)
		return
	}

	if existed {
		c.JSON(http.StatusOK, gin.H{"status": "exists", "message": "song is already in the queue"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "added", "title": item.Title})
}

type VoteRequest struct {
	GuestID string `json:"guest_id" binding:"required"`
	TrackID string `json:"track_id" binding:"required"`
}

func (h *Handler) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, count, err := h.service.ToggleVote(c.Request.Context(), c.Param("code"), req.GuestID, req.TrackID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "action": action, "new_count": count})
}

func (h *Handler) getQueue(c *gin.Context) {
	items, err := h.service.GetQueue(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

func (h *Handler) playNext(c *gin.Context) {
	item, err := h.service.PlayNext(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, queue.ErrQueueEmpty) {
			c.JSON(http.StatusOK, gin.H{"status": "empty", "message": "no songs in the queue"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "playing", "title": item.Title})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrHostNotFound),
		errors.Is(err, queue.ErrTrackNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, token.ErrSessionRenewal):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "host session expired, the host must log in again"})
	case errors.Is(err, ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
