package room

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("", h.createRoom)
		rooms.GET("/:pin", h.getRoom)
		rooms.DELETE("/:pin", h.closeRoom)
		rooms.GET("/:pin/tracks", h.getTracks)
		rooms.POST("/:pin/tracks", h.addTracks)
		rooms.GET("/:pin/votes", h.getVotes)
		rooms.POST("/:pin/votes", h.vote)
		rooms.POST("/:pin/skip", h.skip)
		rooms.POST("/:pin/restart", h.restart)
	}
}

func respondError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Str("module", "room").Str("path", c.FullPath()).Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type CreateRoomRequest struct {
	PlaylistID string `json:"playlist_id"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	room, err := h.service.CreateRoom(c.Request.Context(), CreateRoomInput{
		OwnerID:      c.GetString("user_id"), // Set by auth middleware
		AccessToken:  c.GetString("access_token"),
		RefreshToken: c.GetString("refresh_token"),
		PlaylistID:   req.PlaylistID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.service.GetRoom(c.Request.Context(), c.Param("pin"))
	if err != nil {
		respondError(c, err)
		return
	}
	tracks, err := h.service.GetTracks(c.Request.Context(), room.Pin)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":     room,
		"tracks":   tracks,
		"is_owner": room.OwnerID == c.GetString("user_id"),
	})
}

func (h *Handler) closeRoom(c *gin.Context) {
	if err := h.service.CloseRoom(c.Request.Context(), c.Param("pin"), c.GetString("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getTracks(c *gin.Context) {
	tracks, err := h.service.GetTracks(c.Request.Context(), c.Param("pin"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracks)
}

type TrackRequest struct {
	ID         string `json:"id" binding:"required"`
	Name       string `json:"name"`
	Artists    string `json:"artists"`
	DurationMs int    `json:"duration_ms"`
	Image      string `json:"image"`
}

type AddTracksRequest struct {
	Tracks []TrackRequest `json:"tracks" binding:"required,min=1,dive"`
}

func (h *Handler) addTracks(c *gin.Context) {
	var req AddTracksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tracks := make([]models.Track, len(req.Tracks))
	for i, t := range req.Tracks {
		tracks[i] = models.Track{ID: t.ID, Name: t.Name, Artists: t.Artists, DurationMs: t.DurationMs, Image: t.Image}
	}

	added, err := h.service.AddTracks(c.Request.Context(), c.Param("pin"), tracks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (h *Handler) getVotes(c *gin.Context) {
	votes, scores, err := h.service.GetVotes(c.Request.Context(), c.Param("pin"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes, "scores": scores})
}

type VoteRequest struct {
	TrackID string `json:"track_id" binding:"required"`
	State   string `json:"state" binding:"required,oneof=upvote downvote none"`
}

func (h *Handler) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.service.RecordVote(c.Request.Context(), c.Param("pin"), c.GetString("user_id"), req.TrackID, models.VoteState(req.State))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) skip(c *gin.Context) {
	if err := h.service.Skip(c.Request.Context(), c.Param("pin"), c.GetString("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) restart(c *gin.Context) {
	if err := h.service.Restart(c.Request.Context(), c.Param("pin"), c.GetString("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
