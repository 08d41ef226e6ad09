package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keonramses/cinephage/internal/usenet"
	"github.com/keonramses/cinephage/internal/usenet/stream"
)

// usenetStream serves a media file out of a mounted NZB with HTTP
// Range support.
func (s *Server) usenetStream(c echo.Context) error {
	mountID := c.Param("mountId")
	fileIndex, err := strconv.Atoi(c.Param("fileIndex"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid file index"})
	}

	ctx := c.Request().Context()
	rangeHeader := c.Request().Header.Get("Range")

	st, err := s.deps.Usenet.OpenStream(ctx, mountID, fileIndex, rangeHeader)
	if err != nil {
		return s.usenetError(c, err)
	}
	defer st.Close()

	h := c.Response().Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set(echo.HeaderContentType, mediaContentType(st.File.Filename))
	h.Set(echo.HeaderContentLength, strconv.FormatInt(st.Range.Length(), 10))
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", st.File.Filename))

	code := http.StatusOK
	if st.Partial {
		code = http.StatusPartialContent
		h.Set("Content-Range", st.Range.ContentRange(st.Total))
	}

	if c.Request().Method == http.MethodHead {
		return c.NoContent(code)
	}

	c.Response().WriteHeader(code)
	if err := st.Run(ctx, c.Response()); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug().Err(err).
			Str("mountId", mountID).
			Int("fileIndex", fileIndex).
			Msg("Usenet stream ended")
	}
	return nil
}

func (s *Server) usenetError(c echo.Context, err error) error {
	var rangeErr *usenet.RangeError
	switch {
	case errors.As(err, &rangeErr):
		c.Response().Header().Set("Content-Range", stream.UnsatisfiableContentRange(rangeErr.Total))
		return c.JSON(http.StatusRequestedRangeNotSatisfiable, map[string]string{"error": err.Error()})
	case errors.Is(err, usenet.ErrRequiresExtraction):
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "mount contains only RAR archives and requires extraction before streaming",
		})
	case errors.Is(err, usenet.ErrMountNotFound), errors.Is(err, usenet.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, usenet.ErrMountNotReady):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func mediaContentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
