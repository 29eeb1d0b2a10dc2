package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abdo12KM/nour-alma3refa/internal/auth"
	"github.com/Abdo12KM/nour-alma3refa/internal/config"
	"github.com/Abdo12KM/nour-alma3refa/internal/metrics"
	"github.com/Abdo12KM/nour-alma3refa/internal/ratelimit"
	"github.com/Abdo12KM/nour-alma3refa/internal/speech"
	"github.com/Abdo12KM/nour-alma3refa/internal/store"
	"github.com/Abdo12KM/nour-alma3refa/internal/tts"
)

// UserStore is the slice of the credential/progress store the routes need.
type UserStore interface {
	CreateUser(name, pin string) (int, error)
	VerifyPIN(userID int, pin string) (string, bool, error)
	GetUser(userID int) (*store.User, error)
	UpdateUser(userID int, upd store.UserUpdate) (*store.User, error)
	RecordProgress(userID int, contentKey string, correct bool, points int) (int, error)
	ProgressFor(userID int) ([]store.Progress, error)
}

// SpeechService transcribes field audio and reads handwritten letters.
type SpeechService interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, action speech.Action) (speech.Result, error)
	DetectLetter(ctx context.Context, image []byte, mimeType string) (string, error)
}

// TTSService turns Arabic text into WAV audio.
type TTSService interface {
	Synthesize(ctx context.Context, text string, kind tts.UtteranceType) ([]byte, error)
}

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Server bundles the router and its collaborators.
type Server struct {
	Router http.Handler

	cfg    config.Config
	store  UserStore
	speech SpeechService
	tts    TTSService
}

// NewServer constructs the HTTP server with all routes registered.
func NewServer(cfg config.Config, st UserStore, sp SpeechService, synth TTSService) *Server {
	s := &Server{cfg: cfg, store: st, speech: sp, tts: synth}

	e := New()
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/api/auth/register", s.handleRegister)
	e.POST("/api/auth/login", s.handleLogin)
	// The flow session performs enrollment and login itself, so it sits with
	// the auth endpoints, outside the cookie gate.
	e.GET("/api/flow/session", s.handleFlowSession)

	limiter := ratelimit.New(cfg.RateLimit, time.Duration(cfg.RateWindowSecs)*time.Second)

	api := e.Group("/api", auth.RequireSession())
	api.POST("/speech-to-text", s.handleSpeechToText)
	api.POST("/text-to-speech", s.handleTextToSpeech)
	api.POST("/detect-letter", s.handleDetectLetter, ratelimit.Middleware(limiter))

	users := api.Group("/users/:userId", auth.RequireSelf())
	users.GET("", s.handleGetUser)
	users.PATCH("", s.handlePatchUser)
	users.GET("/progress", s.handleGetProgress)
	users.POST("/progress", s.handlePostProgress)

	s.Router = e
	return s
}

type registerRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request data",
			"details": "malformed JSON body",
		})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !pinPattern.MatchString(req.PIN) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request data",
			"details": "name must be non-empty and pin must be exactly 4 digits",
		})
	}

	userID, err := s.store.CreateUser(req.Name, req.PIN)
	if err != nil {
		log.Printf("register: create user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "Failed to register user",
		})
	}

	c.SetCookie(auth.NewCookie(auth.Session{
		IsAuthenticated: true,
		UserID:          userID,
		Username:        req.Name,
	}, s.cfg.CookieSecureOnly))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"userId":  userID,
		"name":    req.Name,
	})
}

type loginRequest struct {
	UserID int    `json:"userId"`
	PIN    string `json:"pin"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request data",
		})
	}
	if req.UserID <= 0 || !pinPattern.MatchString(req.PIN) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request data",
		})
	}

	name, ok, err := s.store.VerifyPIN(req.UserID, req.PIN)
	if err != nil {
		log.Printf("login: verify pin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "Failed to log in",
		})
	}
	// Unknown id and wrong pin are indistinguishable on purpose.
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success": false,
			"error":   "Invalid user ID or PIN",
		})
	}

	c.SetCookie(auth.NewCookie(auth.Session{
		IsAuthenticated: true,
		UserID:          req.UserID,
		Username:        name,
	}, s.cfg.CookieSecureOnly))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"userId":  req.UserID,
		"name":    name,
	})
}

func (s *Server) handleSpeechToText(c echo.Context) error {
	file, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Empty audio file"})
	}
	f, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Empty audio file"})
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(audio) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Empty audio file"})
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	action := speech.ParseAction(c.FormValue("action"))

	res, err := s.speech.Transcribe(c.Request().Context(), audio, mimeType, action)
	if err != nil {
		return s.speechError(c, action, res, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"text":       res.Text,
		"transcript": res.Transcript,
	})
}

// speechError maps validation sentinels to 400s that keep the raw transcript
// and upstream failures to the upstream's own status.
func (s *Server) speechError(c echo.Context, action speech.Action, res speech.Result, err error) error {
	switch {
	case errors.Is(err, speech.ErrInvalidPINFormat):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":      "Invalid PIN format",
			"message":    "PIN must be exactly 4 digits",
			"transcript": res.Transcript,
		})
	case errors.Is(err, speech.ErrOutOfRange):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":      "Invalid user ID format",
			"message":    "user ID must be a number between 1 and 99999",
			"transcript": res.Transcript,
		})
	case errors.Is(err, speech.ErrEmptyTranscript):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":      "Empty transcript",
			"message":    "no speech detected in the recording",
			"transcript": res.Transcript,
		})
	}

	metrics.UpstreamFailures.WithLabelValues("gemini").Inc()
	log.Printf("speech-to-text (%s): %v", action, err)
	status := http.StatusInternalServerError
	details := ""
	var ue *speech.UpstreamError
	if errors.As(err, &ue) {
		if ue.Status >= 400 {
			status = ue.Status
		}
		details = ue.Body
	}
	return c.JSON(status, echo.Map{
		"error":   "Speech recognition API error",
		"message": "failed to transcribe audio",
		"details": details,
	})
}

type synthesizeRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

func (s *Server) handleTextToSpeech(c echo.Context) error {
	var req synthesizeRequest
	if err := c.Bind(&req); err != nil || req.Text == "" || !tts.ValidUtteranceType(req.Type) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request data",
		})
	}

	audio, err := s.tts.Synthesize(c.Request().Context(), req.Text, tts.UtteranceType(req.Type))
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("google_tts").Inc()
		log.Printf("text-to-speech: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "Text-to-speech generation failed",
		})
	}

	// Synthesis is deterministic for a given text; let clients cache hard.
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Blob(http.StatusOK, "audio/wav", audio)
}

func (s *Server) handleDetectLetter(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file provided"})
	}
	f, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file provided"})
	}
	image, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(image) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file provided"})
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/png"
	}

	prediction, err := s.speech.DetectLetter(c.Request().Context(), image, mimeType)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("gemini").Inc()
		log.Printf("detect-letter: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "Letter detection failed",
			"message": "failed to analyze the image",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"prediction": prediction})
}

func (s *Server) handleGetUser(c echo.Context) error {
	userID, _ := strconv.Atoi(c.Param("userId"))
	u, err := s.store.GetUser(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
		}
		log.Printf("get user %d: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load user"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":        u.ID,
		"name":      u.Name,
		"pin":       u.PIN,
		"points":    u.Points,
		"createdAt": u.CreatedAt,
	})
}

type patchUserRequest struct {
	Name *string `json:"name"`
	PIN  *string `json:"pin"`
}

func (s *Server) handlePatchUser(c echo.Context) error {
	userID, _ := strconv.Atoi(c.Param("userId"))
	var req patchUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == nil && req.PIN == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
		}
		req.Name = &trimmed
	}
	if req.PIN != nil && !pinPattern.MatchString(*req.PIN) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	u, err := s.store.UpdateUser(userID, store.UserUpdate{Name: req.Name, PIN: req.PIN})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
		}
		log.Printf("patch user %d: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update user"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user": echo.Map{
			"id":     u.ID,
			"name":   u.Name,
			"points": u.Points,
		},
	})
}

func (s *Server) handleGetProgress(c echo.Context) error {
	userID, _ := strconv.Atoi(c.Param("userId"))
	progress, err := s.store.ProgressFor(userID)
	if err != nil {
		log.Printf("get progress %d: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load progress"})
	}
	return c.JSON(http.StatusOK, echo.Map{"progress": progress})
}

type progressRequest struct {
	ContentKey string `json:"contentKey"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
}

func (s *Server) handlePostProgress(c echo.Context) error {
	userID, _ := strconv.Atoi(c.Param("userId"))
	var req progressRequest
	if err := c.Bind(&req); err != nil || req.ContentKey == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Points <= 0 {
		req.Points = 10
	}

	total, err := s.store.RecordProgress(userID, req.ContentKey, req.Correct, req.Points)
	if err != nil {
		log.Printf("record progress %d: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to record progress"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"points":  total,
	})
}
