package auth

import (
	"errors"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/party-jam-system/internal/spotify"
	"github.com/party-jam-system/pkg/database"
	"github.com/party-jam-system/pkg/jwt"
	"github.com/party-jam-system/pkg/models"
)

type Handler struct {
	spotifyClient *spotify.Client
	db            *database.DB
}

func NewHandler(spotifyClient *spotify.Client, db *database.DB) *Handler {
	return &Handler{
		spotifyClient: spotifyClient,
		db:            db,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.GET("/login", h.login)
		auth.GET("/callback", h.callback)
	}
}

// login is begin-login: hand back the Spotify consent URL the host's
// browser should visit.
func (h *Handler) login(c *gin.Context) {
	state := uuid.New().String()
	authURL := h.spotifyClient.AuthURL(state)
	c.JSON(http.StatusOK, gin.H{"url": authURL})
}

// callback is complete-login. Spotify returns the host here with a
// one-shot code; we exchange it, ask the API who the host is, create or
// update their record, and set the session cookie.
func (h *Handler) callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	cred, err := h.spotifyClient.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "credential exchange failed"})
		return
	}

	identity, err := h.spotifyClient.Identify(c.Request.Context(), cred.AccessToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not verify spotify identity"})
		return
	}

	host, err := h.upsertHost(identity, cred)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store host"})
		return
	}

	jwtToken, err := jwt.GenerateToken(host.ID.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate session token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "auth_token",
		Value:    jwtToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	c.Redirect(http.StatusFound, frontendURL+"/dashboard?hostId="+host.ID.String())
}

// upsertHost keeps one row per Spotify account: a returning host gets
// fresh credentials, a new one gets a record.
func (h *Handler) upsertHost(identity *spotify.Identity, cred *spotify.Credential) (*models.Host, error) {
	host, err := h.db.GetHostBySpotifyID(identity.ID)
	if err == nil {
		host.AccessToken = cred.AccessToken
		host.RefreshToken = cred.RefreshToken
		host.DisplayName = identity.DisplayName
		host.Email = identity.Email
		host.IsPremium = identity.IsPremium()
		if err := h.db.UpdateHost(host); err != nil {
			return nil, err
		}
		log.Info("host logged in again", "spotify_id", identity.ID)
		return host, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	host = &models.Host{
		ID:           uuid.New(),
		SpotifyID:    identity.ID,
		DisplayName:  identity.DisplayName,
		Email:        identity.Email,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		IsPremium:    identity.IsPremium(),
	}
	if err := h.db.CreateHost(host); err != nil {
		return nil, err
	}
	log.Info("new host created", "spotify_id", identity.ID)
	return host, nil
}
