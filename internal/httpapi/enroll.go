package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxPhotoBytes = 8 << 20

// setTemplate stores a recognition template supplied as base64 JSON.
func (s *Server) setTemplate(c *gin.Context) {
	var req struct {
		Template []byte `json:"template" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Identity.SetTemplate(c.Request.Context(), c.Param("id"), req.Template); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// enrollPhoto stores a member's reference photo, enrolls it with the face
// service and records the photo URL as the member's template. The photo may
// be a multipart "file", a JSON data URL or an already hosted image_url.
func (s *Server) enrollPhoto(c *gin.Context) {
	if s.Enroller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face enrollment not configured"})
		return
	}
	ctx := c.Request.Context()
	m, err := s.Identity.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	imageURL, ok := s.photoURL(c, m.ID)
	if !ok {
		return
	}

	res, err := s.Enroller.Enroll(ctx, m.ID, imageURL, m.FullName)
	if err != nil {
		s.Logger.ErrorContext(ctx, "face enroll failed", "member_id", m.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face service unavailable"})
		return
	}
	if !res.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": res.Message, "quality": res.Quality})
		return
	}
	if err := s.Identity.SetTemplate(ctx, m.ID, []byte(imageURL)); err != nil {
		s.fail(c, err)
		return
	}
	if s.Gallery != nil {
		if _, err := s.Gallery.Refresh(ctx); err != nil {
			s.Logger.WarnContext(ctx, "gallery refresh after enroll failed", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"member_id": m.ID, "image_url": imageURL, "quality": res.Quality})
}

func (s *Server) photoURL(c *gin.Context, memberID string) (string, bool) {
	ctx := c.Request.Context()
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		if s.Photos == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return "", false
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			badRequest(c, "file field required")
			return "", false
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
		if err != nil {
			s.internal(c, "read photo", err)
			return "", false
		}
		if len(data) > maxPhotoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return "", false
		}
		res, err := s.Photos.UploadBytes(ctx, memberID, header.Filename, data)
		if err != nil {
			s.Logger.ErrorContext(ctx, "photo upload failed", "member_id", memberID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return "", false
		}
		return res.SecureURL, true
	}

	var body struct {
		Data     string `json:"data"`
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || (body.Data == "" && body.ImageURL == "") {
		badRequest(c, `provide {"image_url": "..."} or {"data": "<base64 data URL>"}`)
		return "", false
	}
	if body.ImageURL != "" {
		return body.ImageURL, true
	}
	if s.Photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return "", false
	}
	res, err := s.Photos.UploadDataURL(ctx, memberID, body.Data)
	if err != nil {
		s.Logger.ErrorContext(ctx, "photo upload failed", "member_id", memberID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return "", false
	}
	return res.SecureURL, true
}

func (s *Server) refreshGallery(c *gin.Context) {
	if s.Gallery == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recognition not configured"})
		return
	}
	n, err := s.Gallery.Refresh(c.Request.Context())
	if err != nil {
		s.internal(c, "refresh gallery", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": n})
}
