package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saker-ai/phoneai-client/internal/storage"
	"github.com/saker-ai/phoneai-client/pkg/audio"
	"github.com/saker-ai/phoneai-client/pkg/realtime"
)

const (
	maxAudioBodyBytes = 16 << 20
	reconnectTimeout  = 10 * time.Second
)

type sessionHandler struct {
	session    SessionController
	sampleRate int
	channels   int
	logger     *zap.Logger
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *sessionHandler) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *sessionHandler) sendText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.SendTextMessage(req.Text); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.session.Snapshot())
}

// sendAudio accepts a WAV file or raw PCM16LE. Raw bodies may declare their
// rate and channel count with the sample_rate and channels query parameters.
func (h *sessionHandler) sendAudio(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty audio body"})
		return
	}

	pcm, err := h.decodeAudio(c, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	samples, err := h.normalize(pcm)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.SendAudioMessage(samples); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"samples": len(samples), "sample_rate": h.sampleRate})
}

func (h *sessionHandler) decodeAudio(c *gin.Context, body []byte) (audio.PCM, error) {
	contentType := c.ContentType()
	if strings.Contains(contentType, "wav") {
		return audio.DecodeWAV(body)
	}
	if len(body)%2 != 0 {
		return audio.PCM{}, errors.New("pcm16 body has odd length")
	}
	rate, err := queryInt(c, "sample_rate", h.sampleRate)
	if err != nil {
		return audio.PCM{}, err
	}
	channels, err := queryInt(c, "channels", 1)
	if err != nil {
		return audio.PCM{}, err
	}
	return audio.PCM{
		Samples:    audio.BytesToInt16SliceInto(nil, body),
		SampleRate: rate,
		Channels:   channels,
	}, nil
}

// normalize converts input to mono at the session rate.
func (h *sessionHandler) normalize(pcm audio.PCM) ([]int16, error) {
	samples := audio.DownmixToMono(pcm.Samples, pcm.Channels)
	if pcm.SampleRate == h.sampleRate {
		return samples, nil
	}
	return audio.Resample(samples, pcm.SampleRate, h.sampleRate)
}

func (h *sessionHandler) reset(c *gin.Context) {
	if err := h.session.ResetHistory(); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reset requested"})
}

func (h *sessionHandler) reconnect(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), reconnectTimeout)
	defer cancel()
	if err := h.session.Reconnect(ctx); err != nil {
		h.logger.Warn("control api reconnect failed", zap.Error(err))
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func writeSessionError(c *gin.Context, err error) {
	var transportErr *realtime.TransportError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, realtime.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, realtime.ErrNotReady):
		status = http.StatusConflict
	case errors.As(err, &transportErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return value, nil
}

func mountRecordings(router *gin.Engine, dir string, logger *zap.Logger) {
	router.GET("/recordings", func(c *gin.Context) {
		list, err := storage.ListRecordings(dir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	})
	router.GET("/recordings/:name", func(c *gin.Context) {
		path, err := storage.RecordingPath(dir, c.Param("name"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Type", "audio/wav")
		c.File(path)
	})
	logger.Info("serving recordings", zap.String("route", "/recordings"), zap.String("source", dir))
}
