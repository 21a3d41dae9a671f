package handlers

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"pdf-export/internal/domain"
	"pdf-export/internal/infra/logging"
)

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

const (
	msgMethodNotAllowed = "Method not allowed. Use GET or POST."
	msgRenderFailed     = "Failed to generate PDF"
	msgHTMLTooLarge     = "HTML content too large"
	msgStatusCompleted  = "Task successfully completed!"
	msgStatusInfo       = "Send HTML via 'html' query parameter or POST body to generate PDF"
)

// ExportHandler turns HTML from a GET query or POST body into a PDF download.
type ExportHandler struct {
	Renderer     domain.Renderer
	Filename     string
	MaxHTMLBytes int
	MaxPDFBytes  int

	now func() time.Time
}

// NewExportHandler returns a handler rendering through r. Zero limits disable
// the corresponding size check.
func NewExportHandler(r domain.Renderer, filename string, maxHTMLBytes, maxPDFBytes int) *ExportHandler {
	if filename == "" {
		filename = "generated.pdf"
	}
	return &ExportHandler{
		Renderer:     r,
		Filename:     filename,
		MaxHTMLBytes: maxHTMLBytes,
		MaxPDFBytes:  maxPDFBytes,
		now:          time.Now,
	}
}

func (h *ExportHandler) timestamp() string {
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	return now().UTC().Format(isoMillis)
}

// Handle dispatches on the request method. It is meant to be mounted with
// app.All so unsupported methods reach it and get a 405.
func (h *ExportHandler) Handle(c *fiber.Ctx) error {
	var req domain.RenderRequest

	switch c.Method() {
	case fiber.MethodOptions:
		c.Status(fiber.StatusOK)
		return nil

	case fiber.MethodGet:
		req = domain.RenderRequest{Method: domain.MethodGet, HTML: c.Query("html")}
		if req.HTML == "" {
			// Kept for clients that poll the endpoint as a status check.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"success":   true,
				"message":   msgStatusCompleted,
				"timestamp": h.timestamp(),
				"status":    "completed",
				"info":      msgStatusInfo,
			})
		}

	case fiber.MethodPost:
		html, err := htmlFromBody(c)
		if err != nil {
			logging.Warn("Rejected export request",
				"error", err,
				"kind", domain.KindOf(err).String(),
				"request_id", requestID(c),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": domain.ErrMissingHTML.Error(),
			})
		}
		req = domain.RenderRequest{Method: domain.MethodPost, HTML: html}

	default:
		c.Set(fiber.HeaderAllow, "GET, POST, OPTIONS")
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
			"error": msgMethodNotAllowed,
		})
	}

	if h.MaxHTMLBytes > 0 && len(req.HTML) > h.MaxHTMLBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success":   false,
			"error":     msgHTMLTooLarge,
			"message":   fmt.Sprintf("HTML input exceeds %d bytes", h.MaxHTMLBytes),
			"timestamp": h.timestamp(),
		})
	}

	return h.render(c, req)
}

func (h *ExportHandler) render(c *fiber.Ctx, req domain.RenderRequest) error {
	pdf, err := h.Renderer.Render(c.UserContext(), req.Document())
	if err == nil && h.MaxPDFBytes > 0 && len(pdf) > h.MaxPDFBytes {
		err = domain.E(domain.KindSerialization, "print to pdf", domain.ErrPDFTooLarge)
	}
	if err != nil {
		return h.renderFailure(c, err)
	}

	logging.Info("PDF generated",
		"bytes", len(pdf),
		"method", string(req.Method),
		"request_id", requestID(c),
	)

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+h.Filename+`"`)
	c.Set(fiber.HeaderContentLength, strconv.Itoa(len(pdf)))
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Status(fiber.StatusOK).Send(pdf)
}

// renderFailure reports a render error. Every kind except admission (503) is
// reported as 500, as callers have always seen it; the kind is added for
// diagnostics.
func (h *ExportHandler) renderFailure(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	status := fiber.StatusInternalServerError
	if kind == domain.KindUnavailable {
		status = fiber.StatusServiceUnavailable
		c.Set(fiber.HeaderRetryAfter, "5")
	}

	logging.Error("PDF generation failed",
		"error", err,
		"kind", kind.String(),
		"status", status,
		"request_id", requestID(c),
	)

	return c.Status(status).JSON(fiber.Map{
		"success":   false,
		"error":     msgRenderFailed,
		"message":   err.Error(),
		"kind":      kind.String(),
		"timestamp": h.timestamp(),
	})
}

type htmlPayload struct {
	HTML string `json:"html" form:"html"`
}

// htmlFromBody extracts the HTML from a POST body: the "html" field of a JSON
// object or form, a JSON string, or the raw body for any other content type.
// Every error is tagged domain.KindInput.
func htmlFromBody(c *fiber.Ctx) (string, error) {
	const op = "read body"

	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return "", domain.E(domain.KindInput, op, domain.ErrMissingHTML)
	}

	var html string
	switch {
	case c.Is("json"):
		var payload htmlPayload
		if err := c.BodyParser(&payload); err == nil {
			html = payload.HTML
		} else if err := c.App().Config().JSONDecoder(body, &html); err != nil {
			return "", domain.E(domain.KindInput, op, fmt.Errorf("%w: %v", domain.ErrMissingHTML, err))
		}

	case bytes.HasPrefix(c.Request().Header.ContentType(), []byte(fiber.MIMEApplicationForm)),
		bytes.HasPrefix(c.Request().Header.ContentType(), []byte(fiber.MIMEMultipartForm)):
		html = c.FormValue("html")

	default:
		html = string(body)
	}

	if html == "" {
		return "", domain.E(domain.KindInput, op, domain.ErrMissingHTML)
	}
	return html, nil
}

func requestID(c *fiber.Ctx) string {
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
