package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/models"
)

// Confirmer applies provider payment statuses to tracked payment requests
type Confirmer interface {
	ConfirmPayment(ctx context.Context, paymentID, status string) (*models.PaymentRequest, error)
}

// notification represents the provider's webhook body
type notification struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// Server receives payment notifications from the provider. Deliveries are
// idempotent: repeating a terminal status is a no-op downstream.
type Server struct {
	engine    *gin.Engine
	cfg       config.WebhookConfig
	confirmer Confirmer
	logger    *logrus.Logger
}

// NewServer creates the notification server
func NewServer(cfg config.WebhookConfig, confirmer Confirmer, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:    engine,
		cfg:       cfg,
		confirmer: confirmer,
		logger:    logger,
	}

	engine.POST("/webhook", s.handleNotification)
	return s
}

// Handler exposes the underlying handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is canceled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Stopping webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("Webhook server listening on %s", s.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleNotification validates the shared secret and the body shape, then
// delegates to the confirmer. Downstream failures still answer 200: the
// explicit poll path recovers missed applications, and a non-200 would only
// make the provider hammer a broken panel.
func (s *Server) handleNotification(c *gin.Context) {
	secret := c.GetHeader("X-Webhook-Secret")
	if secret == "" {
		secret = c.Query("secret")
	}
	if s.cfg.Secret == "" || secret != s.cfg.Secret {
		s.logger.Warnf("Webhook rejected: bad secret from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var n notification
	if err := c.ShouldBindJSON(&n); err != nil || n.Object.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
		return
	}

	s.logger.Infof("Webhook: payment %s is %s", n.Object.ID, n.Object.Status)

	if _, err := s.confirmer.ConfirmPayment(c.Request.Context(), n.Object.ID, n.Object.Status); err != nil {
		s.logger.Errorf("Failed to confirm payment %s: %v", n.Object.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
