// Package server exposes the prompt processor over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/logger"
)

const maxPromptRunes = 1000

// Message is a WebSocket frame in either direction. Clients send
// {"type":"prompt"}; the server answers with stream, response or error.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	MessagePrompt   = "prompt"
	MessageStream   = "stream"
	MessageResponse = "response"
	MessageError    = "error"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// PromptProcessor answers user prompts. Failures are reported inside the
// response, never as errors.
type PromptProcessor interface {
	Process(ctx context.Context, prompt string) models.PromptResponse
	ProcessStream(ctx context.Context, prompt string, onToken func(string) error) models.PromptResponse
}

type Config struct {
	Port            string
	Streaming       bool
	ShutdownTimeout time.Duration
}

type Server struct {
	config    Config
	processor PromptProcessor
	router    *gin.Engine
	upgrader  websocket.Upgrader
	log       *logger.Logger
}

func New(config Config, processor PromptProcessor, log *logger.Logger) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		config:    config,
		processor: processor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.With("component", "server"),
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
	}))

	router.GET("/health", s.handleHealth)
	router.POST("/process-prompt", s.handleProcessPrompt)
	router.GET("/ws", s.handleWebSocket)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "port", s.config.Port, "streaming", s.config.Streaming)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleProcessPrompt(c *gin.Context) {
	var req models.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	if msg := validatePrompt(req.UserPromptText); msg != "" {
		respondError(c, http.StatusUnprocessableEntity, "validation_error", msg)
		return
	}

	resp := s.processor.Process(c.Request.Context(), req.UserPromptText)
	c.JSON(http.StatusOK, resp)
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// validatePrompt returns a message describing why prompt is unacceptable,
// or "" when it is fine.
func validatePrompt(prompt string) string {
	n := utf8.RuneCountInString(prompt)
	switch {
	case strings.TrimSpace(prompt) == "":
		return "user_prompt_text must not be empty"
	case n > maxPromptRunes:
		return "user_prompt_text must be at most 1000 characters"
	}
	return ""
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteJSON(msg)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	raw, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read ended", "error", err)
			}
			cancel()
			return
		}

		wg.Add(1)
		go func(msg Message) {
			defer wg.Done()
			s.handleMessage(ctx, conn, msg)
		}(msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *wsConn, msg Message) {
	if msg.Type != MessagePrompt {
		s.sendMessage(conn, Message{Type: MessageError, Content: "unsupported message type " + msg.Type})
		return
	}
	if problem := validatePrompt(msg.Content); problem != "" {
		s.sendMessage(conn, Message{Type: MessageError, Content: problem})
		return
	}

	var resp models.PromptResponse
	if s.config.Streaming {
		resp = s.processor.ProcessStream(ctx, msg.Content, func(tok string) error {
			return conn.send(Message{Type: MessageStream, Content: tok})
		})
	} else {
		resp = s.processor.Process(ctx, msg.Content)
	}

	if resp.ErrorCode != 0 {
		s.sendMessage(conn, Message{Type: MessageError, Content: resp.GeneratedResponse, Data: resp})
		return
	}
	s.sendMessage(conn, Message{Type: MessageResponse, Content: resp.GeneratedResponse, Data: resp})
}

func (s *Server) sendMessage(conn *wsConn, msg Message) {
	if err := conn.send(msg); err != nil {
		s.log.Warn("error sending message", "type", msg.Type, "error", err)
	}
}
