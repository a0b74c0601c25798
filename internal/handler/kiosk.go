package handler

import (
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/directory"
	"presensi/internal/portal"
)

func (h *Handler) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide device_id.")
		return
	}
	ar := authRequest(c)
	ar.Capability = directory.CapabilityAdmin
	pair, err := portal.AuthorizeAndFetch(c.Request.Context(), h.svc, ar, func(_ context.Context, who directory.Identity) (auth.TokenPair, error) {
		pair, err := h.devices.Issue(strings.TrimSpace(req.DeviceID), who.SubjectID)
		if err != nil {
			return auth.TokenPair{}, err
		}
		log.Info().Str("device_id", req.DeviceID).Str("by", who.SubjectID).Msg("kiosk registered")
		return pair, nil
	})
	respond(c, http.StatusCreated, pair, err)
}

func (h *Handler) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Provide refresh_token.")
		return
	}
	pair, err := h.devices.Refresh(req.RefreshToken)
	if err != nil {
		respondError(c, auth.TokenError(err))
		return
	}
	c.JSON(http.StatusOK, pair)
}

type scanRequest struct {
	CredentialHash string    `json:"credential_hash" form:"credential_hash"`
	CapturedAt     time.Time `json:"captured_at" form:"captured_at"`
	// Photo is a data URL ("data:image/jpeg;base64,...") or bare base64.
	// Multipart requests send it as a file part or a text field and are read
	// by hand, since form binding rejects file parts.
	Photo string `json:"photo" form:"-"`
}

func (h *Handler) submitScan(c *gin.Context) {
	var req scanRequest
	scan := attendance.Scan{}
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "Invalid scan payload.")
			return
		}
		if fh, err := c.FormFile("photo"); err == nil {
			scan.Photo, scan.PhotoContentType, scan.PhotoName = h.readPhotoFile(fh)
		} else {
			req.Photo = c.PostForm("photo")
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid scan payload.")
		return
	}
	scan.CredentialHash = req.CredentialHash
	scan.CapturedAt = req.CapturedAt
	if scan.Photo == nil && req.Photo != "" {
		scan.Photo, scan.PhotoContentType = h.decodePhoto(req.Photo)
	}
	if claims, ok := auth.DeviceFrom(c); ok {
		log.Debug().Str("device_id", claims.DeviceID).Msg("scan received")
	}

	acc, err := h.svc.SubmitScan(c.Request.Context(), scan)
	respond(c, http.StatusCreated, acc, err)
}

// decodePhoto returns nil for undecodable or oversized photos; the scan is
// still processed without one.
func (h *Handler) decodePhoto(s string) ([]byte, string) {
	contentType := ""
	if strings.HasPrefix(s, "data:") {
		meta, payload, found := strings.Cut(s, ",")
		if !found {
			return nil, ""
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
		s = payload
	}
	if base64.StdEncoding.DecodedLen(len(s)) > h.maxPhoto {
		log.Warn().Int("size", len(s)).Msg("scan photo too large, dropped")
		return nil, ""
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		log.Warn().Err(err).Msg("scan photo not valid base64, dropped")
		return nil, ""
	}
	return data, contentType
}

func (h *Handler) readPhotoFile(fh *multipart.FileHeader) ([]byte, string, string) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", ""
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(h.maxPhoto)+1))
	if err != nil || len(data) > h.maxPhoto {
		log.Warn().Str("name", fh.Filename).Msg("scan photo unreadable or too large, dropped")
		return nil, "", ""
	}
	return data, fh.Header.Get("Content-Type"), fh.Filename
}

func (h *Handler) scannerFeed(c *gin.Context) {
	res, err := h.svc.ScannerFeed(c.Request.Context())
	respondOK(c, res, err)
}

func (h *Handler) kioskSettings(c *gin.Context) {
	res, err := h.svc.KioskSettings(c.Request.Context())
	respondOK(c, res, err)
}
