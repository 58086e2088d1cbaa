package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dormitory-housing-backend/internal/apperr"
	"dormitory-housing-backend/internal/transfer"
)

// maxSnapshotSize bounds uploaded structure files.
const maxSnapshotSize = 8 << 20

// ExportStructure handles GET /api/staff/structure/export?format=json|yaml.
func (h *Handler) ExportStructure(c *gin.Context) {
	format, err := transfer.ParseFormat(c.Query("format"))
	if err != nil {
		h.fail(c, err)
		return
	}

	snap, err := h.transfer.Export(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := transfer.Encode(&buf, snap, format); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="structure.%s"`, format))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// ImportStructure handles POST /api/staff/structure/import. The snapshot is
// either a multipart upload named "file" or the raw request body.
func (h *Handler) ImportStructure(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSnapshotSize)

	body, format, closeBody, err := snapshotSource(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeBody()

	snap, err := transfer.Decode(body, format)
	if err != nil {
		h.fail(c, err)
		return
	}

	summary, err := h.transfer.Import(c.Request.Context(), snap)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func snapshotSource(c *gin.Context) (io.Reader, transfer.Format, func(), error) {
	noop := func() {}

	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		format, err := transfer.FormatFromContentType(c.GetHeader("Content-Type"))
		if err != nil {
			return nil, "", noop, err
		}
		return c.Request.Body, format, noop, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", noop, apperr.Validation("file is required")
	}
	format, ok := transfer.FormatFromFilename(fh.Filename)
	if !ok {
		format, err = transfer.FormatFromContentType(fh.Header.Get("Content-Type"))
		if err != nil {
			return nil, "", noop, err
		}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", noop, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	return f, format, func() { f.Close() }, nil
}
