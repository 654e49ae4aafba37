package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/identity"
	logicv1 "github.com/duynhne/campus-portal/internal/logic/v1"
	"github.com/duynhne/campus-portal/middleware"
)

const (
	visitorKey = "visitor"

	landingPath = "/"
	campusPath  = "/campus"
)

// Handler serves the landing page, the campus page and the form actions that
// drive a visitor's identity flow and gate.
type Handler struct {
	registry       *logicv1.Registry
	cookies        *middleware.SessionCookies
	googleClientID string
	logger         *zap.Logger
}

// NewHandler creates a handler over the visitor registry. An empty
// googleClientID hides the federated sign-in button.
func NewHandler(registry *logicv1.Registry, cookies *middleware.SessionCookies, googleClientID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, cookies: cookies, googleClientID: googleClientID, logger: logger}
}

// Register mounts the portal routes. The visitor middleware must run before them.
func (h *Handler) Register(r gin.IRouter) {
	r.GET(landingPath, h.Landing)
	r.GET(campusPath, middleware.GateGuard(h.gatePassed, landingPath), h.Campus)

	auth := r.Group("/auth")
	{
		auth.POST("/open", h.OpenAuth)
		auth.POST("/dismiss", h.DismissAuth)
		auth.POST("/federated", h.SignInFederated)
		auth.POST("/email", h.SignInWithEmail)
		auth.POST("/reset", h.ResetPassword)
		auth.POST("/recovery/back", h.BackToLogin)
		auth.POST("/profile", h.CompleteProfile)
		auth.POST("/logout", h.Logout)
	}

	gate := r.Group("/gate")
	{
		gate.POST("", h.SubmitGate)
		gate.POST("/open", h.OpenGate)
		gate.POST("/close", h.CloseGate)
		gate.POST("/leave", h.LeaveGate)
	}

	r.GET("/api/v1/state", h.State)
}

// StateResponse is the JSON view of a visitor.
type StateResponse struct {
	Flow  logicv1.FlowView `json:"flow"`
	Gate  logicv1.GateView `json:"gate"`
	Error string           `json:"error,omitempty"`
}

// visitor resolves the visitor of the request and, on its first request in this
// process, restores the persisted identity session from the session cookie.
func (h *Handler) visitor(c *gin.Context) *logicv1.Visitor {
	if v, ok := c.Get(visitorKey); ok {
		if visitor, ok := v.(*logicv1.Visitor); ok {
			return visitor
		}
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFrom(c, h.logger)
	visitor := h.registry.Get(ctx, middleware.VisitorID(c))
	c.Set(visitorKey, visitor)

	persisted, err := h.cookies.Read(c)
	if err != nil {
		logger.Warn("Discarding session cookie", zap.Error(err))
		h.writeSession(c, nil)
		persisted = nil
	}

	restored, err := visitor.Restore(ctx, persisted)
	switch {
	case !restored:
	case err != nil:
		logger.Warn("Failed to restore session", zap.String("code", identity.CodeOf(err)), zap.Error(err))
		h.writeSession(c, nil)
	case persisted != nil:
		// Rotated refresh token.
		h.writeSession(c, visitor.Session.CurrentUser())
	}
	return visitor
}

func (h *Handler) gatePassed(c *gin.Context) bool {
	return h.visitor(c).Gate.Passed()
}

// persistSession writes the current identity session to the cookie, clearing
// it when signed out.
func (h *Handler) persistSession(c *gin.Context, v *logicv1.Visitor) {
	h.writeSession(c, v.Session.CurrentUser())
}

func (h *Handler) writeSession(c *gin.Context, user *domain.User) {
	if err := h.cookies.Write(c, user); err != nil {
		middleware.LoggerFrom(c, h.logger).Error("Failed to write session cookie", zap.Error(err))
	}
}

// respond finishes a form action: JSON clients get the visitor state, browsers
// are redirected (post/redirect/get).
func (h *Handler) respond(c *gin.Context, v *logicv1.Visitor, err error, redirectTo string) {
	if !wantsJSON(c) {
		c.Redirect(http.StatusSeeOther, redirectTo)
		return
	}

	status := http.StatusOK
	resp := StateResponse{Flow: v.Flow.View(true), Gate: v.Gate.View()}
	if err != nil {
		status = statusFor(err)
		resp.Error = publicMessage(err)
	}
	c.JSON(status, resp)
}

// rejectBinding reports a malformed form: JSON clients get 400, browsers a
// notification on the page they came from.
func (h *Handler) rejectBinding(c *gin.Context, v *logicv1.Visitor, err error) {
	msg := sanitizeValidationError(err)
	middleware.LoggerFrom(c, h.logger).Info("Invalid request", zap.Error(err))
	if wantsJSON(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	v.Flow.Notify(domain.Failure("Invalid request", msg))
	c.Redirect(http.StatusSeeOther, returnTo(c))
}

// startSpan opens the web span of an action and makes it the request context.
func (h *Handler) startSpan(c *gin.Context, action string) trace.Span {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("action", action),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	c.Request = c.Request.WithContext(ctx)
	return span
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

// returnTo is the page a browser goes back to after an action. Only the two
// portal pages are accepted.
func returnTo(c *gin.Context) string {
	if c.PostForm("return_to") == campusPath {
		return campusPath
	}
	return landingPath
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSubmitting), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmailRequired),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidPhone):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}

	switch identity.CodeOf(err) {
	case "":
		return http.StatusInternalServerError
	case identity.CodeWeakPassword, identity.CodeInvalidEmail:
		return http.StatusUnprocessableEntity
	case identity.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case identity.CodeNetwork, identity.CodeInternal:
		return http.StatusBadGateway
	default:
		return http.StatusUnauthorized
	}
}

// publicMessage is the error text shown to clients. Wrapped internal detail
// such as the current step never leaves the process.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrSubmitting):
		return "A request is already in progress"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "This action is not available right now"
	case errors.Is(err, domain.ErrNoSession):
		return "Sign in first"
	case errors.Is(err, domain.ErrEmailRequired):
		return "Enter your email to reset the password"
	case errors.Is(err, domain.ErrInvalidName):
		return "Full name is too short"
	case errors.Is(err, domain.ErrInvalidPhone):
		return "Invalid WhatsApp number"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "Service temporarily unavailable"
	}
	if identity.CodeOf(err) != "" {
		return identity.MessageOf(err)
	}
	return "Internal server error"
}
