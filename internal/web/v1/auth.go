package v1

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/identity"
	"github.com/duynhne/campus-portal/middleware"
)

type federatedRequest struct {
	ProviderID string `form:"provider_id" json:"provider_id"`
	IDToken    string `form:"id_token" json:"id_token" binding:"required"`
}

type emailRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type resetRequest struct {
	Email string `form:"email" json:"email"`
}

// OpenAuth shows the sign-in modal.
func (h *Handler) OpenAuth(c *gin.Context) {
	v := h.visitor(c)
	v.Flow.Open()
	h.respond(c, v, nil, returnTo(c))
}

// DismissAuth hides the sign-in modal. It is refused while the profile is pending.
func (h *Handler) DismissAuth(c *gin.Context) {
	v := h.visitor(c)
	h.respond(c, v, v.Flow.Dismiss(), returnTo(c))
}

// SignInFederated handles POST /auth/federated with an id token obtained by the
// browser from the federated provider.
func (h *Handler) SignInFederated(c *gin.Context) {
	span := h.startSpan(c, "sign_in_federated")
	defer span.End()
	v := h.visitor(c)

	var req federatedRequest
	if err := c.ShouldBind(&req); err != nil {
		h.rejectBinding(c, v, err)
		return
	}
	if req.ProviderID == "" {
		req.ProviderID = "google.com"
	}
	span.SetAttributes(attribute.String("provider", req.ProviderID))

	err := v.Flow.SignInFederated(c.Request.Context(), identity.Credential{ProviderID: req.ProviderID, IDToken: req.IDToken})
	if err != nil {
		span.RecordError(err)
	}
	h.persistSession(c, v)
	h.respond(c, v, err, returnTo(c))
}

// SignInWithEmail handles POST /auth/email: sign in, registering unknown accounts.
func (h *Handler) SignInWithEmail(c *gin.Context) {
	span := h.startSpan(c, "sign_in_email")
	defer span.End()
	v := h.visitor(c)

	var req emailRequest
	if err := c.ShouldBind(&req); err != nil {
		h.rejectBinding(c, v, err)
		return
	}

	err := v.Flow.SignInOrRegister(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
	}
	h.persistSession(c, v)
	h.respond(c, v, err, returnTo(c))
}

// ResetPassword handles POST /auth/reset.
func (h *Handler) ResetPassword(c *gin.Context) {
	span := h.startSpan(c, "reset_password")
	defer span.End()
	v := h.visitor(c)

	var req resetRequest
	if err := c.ShouldBind(&req); err != nil {
		h.rejectBinding(c, v, err)
		return
	}

	err := v.Flow.ResetPassword(c.Request.Context(), req.Email)
	if err != nil {
		span.RecordError(err)
	}
	h.respond(c, v, err, returnTo(c))
}

// BackToLogin handles POST /auth/recovery/back.
func (h *Handler) BackToLogin(c *gin.Context) {
	v := h.visitor(c)
	h.respond(c, v, v.Flow.BackToLogin(), returnTo(c))
}

// CompleteProfile handles POST /auth/profile.
func (h *Handler) CompleteProfile(c *gin.Context) {
	span := h.startSpan(c, "complete_profile")
	defer span.End()
	v := h.visitor(c)

	var form domain.ProfileForm
	if err := c.ShouldBind(&form); err != nil {
		h.rejectBinding(c, v, err)
		return
	}

	err := v.Flow.CompleteProfile(c.Request.Context(), form)
	if err != nil {
		span.RecordError(err)
	} else if user := v.Session.CurrentUser(); user != nil {
		middleware.LoggerFrom(c, h.logger).Info("Profile completed", zap.String("uid", user.UID))
	}
	h.respond(c, v, err, returnTo(c))
}

// Logout handles POST /auth/logout. The gate is left untouched.
func (h *Handler) Logout(c *gin.Context) {
	span := h.startSpan(c, "logout")
	defer span.End()
	v := h.visitor(c)

	err := v.Flow.Logout(c.Request.Context())
	h.persistSession(c, v)
	h.respond(c, v, err, returnTo(c))
}
