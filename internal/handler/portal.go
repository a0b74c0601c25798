package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"presensi/internal/portal"
	"presensi/internal/settings"
)

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide email and password.")
		return
	}
	res, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	respondOK(c, res, err)
}

func (h *Handler) changePassword(c *gin.Context) {
	var in portal.PasswordChange
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Provide old_password and new_password.")
		return
	}
	err := h.svc.ChangeOwnPassword(c.Request.Context(), authRequest(c), in)
	respond(c, http.StatusNoContent, nil, err)
}

func (h *Handler) adminDashboard(c *gin.Context) {
	res, err := h.svc.AdminDashboard(c.Request.Context(), authRequest(c))
	respondOK(c, res, err)
}

func (h *Handler) listUsers(c *gin.Context) {
	res, err := h.svc.ListUsers(c.Request.Context(), authRequest(c))
	respondOK(c, gin.H{"users": res}, err)
}

func (h *Handler) createUser(c *gin.Context) {
	var in portal.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid user payload.")
		return
	}
	res, err := h.svc.CreateUser(c.Request.Context(), authRequest(c), in)
	respond(c, http.StatusCreated, res, err)
}

func (h *Handler) updateUser(c *gin.Context) {
	var in portal.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid user payload.")
		return
	}
	in.SubjectID = c.Param("id")
	res, err := h.svc.UpdateUser(c.Request.Context(), authRequest(c), in)
	respondOK(c, res, err)
}

func (h *Handler) deleteUser(c *gin.Context) {
	err := h.svc.DeleteUser(c.Request.Context(), authRequest(c), c.Param("id"))
	respond(c, http.StatusNoContent, nil, err)
}

func (h *Handler) resetPassword(c *gin.Context) {
	temp, err := h.svc.ResetPassword(c.Request.Context(), authRequest(c), c.Param("id"))
	respondOK(c, gin.H{"temp_password": temp}, err)
}

func (h *Handler) setStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide status.")
		return
	}
	err := h.svc.SetUserStatus(c.Request.Context(), authRequest(c), c.Param("id"), req.Status)
	respond(c, http.StatusNoContent, nil, err)
}

func (h *Handler) bindCredential(c *gin.Context) {
	var req struct {
		CredentialHash string `json:"credential_hash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide credential_hash.")
		return
	}
	err := h.svc.BindCredential(c.Request.Context(), authRequest(c), c.Param("id"), req.CredentialHash)
	respond(c, http.StatusNoContent, nil, err)
}

func (h *Handler) recordAbsence(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide status and note.")
		return
	}
	rec, err := h.svc.RecordAbsence(c.Request.Context(), authRequest(c), c.Param("id"), req.Status, req.Note)
	respond(c, http.StatusCreated, rec, err)
}

func (h *Handler) getSettings(c *gin.Context) {
	res, err := h.svc.GetSettings(c.Request.Context(), authRequest(c))
	respondOK(c, res, err)
}

func (h *Handler) saveSettings(c *gin.Context) {
	var in settings.Settings
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid settings payload.")
		return
	}
	res, err := h.svc.SaveSettings(c.Request.Context(), authRequest(c), in)
	respondOK(c, res, err)
}

func (h *Handler) setMaintenance(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide enabled.")
		return
	}
	err := h.svc.SetMaintenance(c.Request.Context(), authRequest(c), req.Enabled)
	respondOK(c, gin.H{"maintenance": req.Enabled}, err)
}

func (h *Handler) reloadConfig(c *gin.Context) {
	res, err := h.svc.ReloadConfig(c.Request.Context(), authRequest(c))
	respondOK(c, res, err)
}

func (h *Handler) teacherDashboard(c *gin.Context) {
	res, err := h.svc.TeacherDashboard(c.Request.Context(), authRequest(c))
	respondOK(c, res, err)
}
