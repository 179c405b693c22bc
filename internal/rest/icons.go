package rest

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitter-badger/urfiles/api"
	"github.com/gitter-badger/urfiles/icons/application"
	"github.com/gitter-badger/urfiles/icons/domain"
	"github.com/rs/zerolog/log"
)

const (
	fileField          = "file"
	reasonFileRequired = "file is required"
)

type IconHandler struct {
	icons *application.IconService
}

func NewIconHandler(icons *application.IconService) *IconHandler {
	return &IconHandler{icons: icons}
}

// Download streams the stored bytes of an icon.
func (h *IconHandler) Download(c *gin.Context) {
	key, ok := iconKey(c)
	if !ok {
		return
	}

	download, err := h.icons.Open(c.Request.Context(), key)
	if err != nil {
		writeError(c, key, err)
		return
	}
	defer download.Close()

	c.DataFromReader(http.StatusOK, download.Size, download.ContentType, download, nil)
}

// Upload stores a new icon and refuses to replace an existing one.
func (h *IconHandler) Upload(c *gin.Context) {
	key, ok := iconKey(c)
	if !ok {
		return
	}

	upload, closeUpload, ok := formUpload(c)
	if !ok {
		return
	}
	defer closeUpload()

	if _, err := h.icons.Upload(c.Request.Context(), key, upload); err != nil {
		writeError(c, key, err)
		return
	}

	c.Header("Location", iconLocation(key))
	c.Status(http.StatusCreated)
}

// Overwrite stores an icon, replacing any existing one.
func (h *IconHandler) Overwrite(c *gin.Context) {
	key, ok := iconKey(c)
	if !ok {
		return
	}

	upload, closeUpload, ok := formUpload(c)
	if !ok {
		return
	}
	defer closeUpload()

	if _, err := h.icons.Overwrite(c.Request.Context(), key, upload); err != nil {
		writeError(c, key, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h *IconHandler) Delete(c *gin.Context) {
	key, ok := iconKey(c)
	if !ok {
		return
	}

	if err := h.icons.Delete(c.Request.Context(), key); err != nil {
		writeError(c, key, err)
		return
	}

	c.Status(http.StatusOK)
}

// List returns the indexed icons of one service.
func (h *IconHandler) List(c *gin.Context) {
	service := c.Param("service")

	icons, err := h.icons.List(c.Request.Context(), service)
	if err != nil {
		writeError(c, domain.Key{Service: service}, err)
		return
	}

	out := api.IconList{
		Service: service,
		Icons:   make([]api.Icon, 0, len(icons)),
	}
	for _, icon := range icons {
		out.Icons = append(out.Icons, toAPI(icon))
	}

	c.JSON(http.StatusOK, out)
}

// Describe returns the indexed metadata of one icon.
func (h *IconHandler) Describe(c *gin.Context) {
	key, ok := iconKey(c)
	if !ok {
		return
	}

	icon, err := h.icons.Describe(c.Request.Context(), key)
	if err != nil {
		writeError(c, key, err)
		return
	}

	c.JSON(http.StatusOK, toAPI(icon))
}

func iconKey(c *gin.Context) (domain.Key, bool) {
	key, err := domain.NewKey(c.Param("service"), c.Param("name"))
	if err != nil {
		c.String(http.StatusBadRequest, domain.ErrInvalidKey.Error())
		return domain.Key{}, false
	}
	return key, true
}

func formUpload(c *gin.Context) (application.Upload, func(), bool) {
	header, err := c.FormFile(fileField)
	if err != nil {
		c.String(http.StatusBadRequest, reasonFileRequired)
		return application.Upload{}, nil, false
	}

	file, err := header.Open()
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("failed to open uploaded file")
		c.Status(http.StatusInternalServerError)
		return application.Upload{}, nil, false
	}

	closeFile := func() {
		if err := file.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close uploaded file")
		}
	}

	return application.Upload{Size: header.Size, Content: file}, closeFile, true
}

// writeError maps service errors to status codes. Client errors carry their
// reason as a plain text body.
func writeError(c *gin.Context, key domain.Key, err error) {
	switch {
	case application.IsValidationError(err):
		c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		c.String(http.StatusBadRequest, domain.ErrAlreadyExists.Error())
	case errors.Is(err, domain.ErrInvalidKey):
		c.String(http.StatusBadRequest, domain.ErrInvalidKey.Error())
	case errors.Is(err, domain.ErrNotFound):
		c.Status(http.StatusNotFound)
	case errors.Is(err, domain.ErrNotModified):
		c.Status(http.StatusNotModified)
	default:
		log.Error().Err(err).Str("icon", key.String()).Str("method", c.Request.Method).Msg("Icon request failed")
		c.Status(http.StatusInternalServerError)
	}
}

func iconLocation(key domain.Key) string {
	return IconsPath + "/" + url.PathEscape(key.Service) + "/" + url.PathEscape(key.Name)
}

func toAPI(icon *domain.Icon) api.Icon {
	out := api.Icon{
		Service:     icon.Key.Service,
		Name:        icon.Key.Name,
		Format:      icon.Format.String(),
		ContentType: icon.Format.ContentType(),
		Size:        icon.Size,
		Width:       icon.Width,
		Height:      icon.Height,
		Hash:        icon.Hash,
		Location:    iconLocation(icon.Key),
		CreatedAt:   icon.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !icon.UpdatedAt.IsZero() {
		out.UpdatedAt = icon.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
