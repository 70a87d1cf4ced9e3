package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Transcribe relays an uploaded audio clip to the reply service and returns
// its transcription. The caller feeds the text back into the chat submit.
// POST /v1/voice/transcribe
func (h *Handler) Transcribe(c echo.Context) error {
	ctx := c.Request().Context()

	if !h.coord.Current().Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "audio file is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read audio file"})
	}
	defer file.Close()

	resp, err := h.reply.Transcribe(ctx, fileHeader.Filename, file)
	if err != nil {
		log.Printf("WARN: transcription failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "transcription unavailable, try again"})
	}
	return c.JSON(http.StatusOK, map[string]string{"text": resp.Text})
}
