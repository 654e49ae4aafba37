package v1

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	logicv1 "github.com/duynhne/campus-portal/internal/logic/v1"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates parses the embedded page templates for gin's HTML renderer.
func Templates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.html")
}

// pageData is what the page templates render. Notifications are drained into
// it, so each one is shown once.
type pageData struct {
	Flow           logicv1.FlowView
	Gate           logicv1.GateView
	ReturnTo       string
	GoogleClientID string
}

func (h *Handler) page(v *logicv1.Visitor, returnTo string) pageData {
	return pageData{
		Flow:           v.Flow.View(true),
		Gate:           v.Gate.View(),
		ReturnTo:       returnTo,
		GoogleClientID: h.googleClientID,
	}
}

// Landing renders the public page with the sign-in and gate modals.
func (h *Handler) Landing(c *gin.Context) {
	v := h.visitor(c)
	c.HTML(http.StatusOK, "landing.html", h.page(v, landingPath))
}

// Campus renders the gated page. Only the gate guards it; the identity session
// plays no part.
func (h *Handler) Campus(c *gin.Context) {
	v := h.visitor(c)
	c.HTML(http.StatusOK, "campus.html", h.page(v, campusPath))
}

// State handles GET /api/v1/state.
func (h *Handler) State(c *gin.Context) {
	v := h.visitor(c)
	c.JSON(http.StatusOK, StateResponse{Flow: v.Flow.View(true), Gate: v.Gate.View()})
}

type gateRequest struct {
	Password string `form:"password" json:"password"`
}

// OpenGate shows the gate modal.
func (h *Handler) OpenGate(c *gin.Context) {
	v := h.visitor(c)
	v.Gate.Open()
	h.respond(c, v, nil, returnTo(c))
}

// CloseGate hides the gate modal.
func (h *Handler) CloseGate(c *gin.Context) {
	v := h.visitor(c)
	v.Gate.Close()
	h.respond(c, v, nil, returnTo(c))
}

// SubmitGate checks the shared secret. Browsers that pass go to the campus.
func (h *Handler) SubmitGate(c *gin.Context) {
	span := h.startSpan(c, "gate_submit")
	defer span.End()
	v := h.visitor(c)

	var req gateRequest
	if err := c.ShouldBind(&req); err != nil {
		h.rejectBinding(c, v, err)
		return
	}

	redirectTo := returnTo(c)
	if v.Gate.Submit(req.Password) {
		redirectTo = campusPath
	}
	h.respond(c, v, nil, redirectTo)
}

// LeaveGate resets the gate and returns to the landing page. The identity
// session is left untouched.
func (h *Handler) LeaveGate(c *gin.Context) {
	v := h.visitor(c)
	v.Gate.Leave()
	h.respond(c, v, nil, landingPath)
}
