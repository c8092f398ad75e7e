// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"coldnet-server/internal/gateway"
	"coldnet-server/internal/service"
	"coldnet-server/pkg/response"
)

// maxUploadSize 上传文件的大小上限（32MB）
const maxUploadSize = 32 << 20

// SpeechHandler 语音和图像请求处理器
type SpeechHandler struct {
	speechService *service.SpeechService
}

// NewSpeechHandler 创建 SpeechHandler 实例
func NewSpeechHandler(speechService *service.SpeechService) *SpeechHandler {
	return &SpeechHandler{speechService: speechService}
}

// Transcribe 语音识别
// POST /api/stt/transcribe
// 接收 multipart 上传的音频文件，归一化后代理给 STT 接口
func (h *SpeechHandler) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "缺少音频文件")
		return
	}
	if fileHeader.Size > maxUploadSize {
		response.BadRequest(c, "音频文件过大")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "音频文件读取失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(c, "音频文件读取失败")
		return
	}

	text, err := h.speechService.Transcribe(c.Request.Context(), data, fileHeader.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAudioProcessing):
			response.AudioFailed(c)
		case errors.Is(err, gateway.ErrUnavailable):
			response.AIUnavailable(c)
		case errors.Is(err, gateway.ErrBadResponse):
			response.AIBadResponse(c)
		default:
			response.InternalError(c, "语音识别失败")
		}
		return
	}

	response.Success(c, gin.H{"text": text})
}

// SynthesizeRequest 语音合成请求
type SynthesizeRequest struct {
	Text string `json:"text" binding:"required"` // 要合成的文本
}

// Synthesize 语音合成
// POST /api/tts/synthesize
// 上游的音频流逐块转发给客户端
func (h *SpeechHandler) Synthesize(c *gin.Context) {
	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	stream, contentType, err := h.speechService.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrUnavailable):
			response.AIUnavailable(c)
		case errors.Is(err, gateway.ErrBadResponse):
			response.AIBadResponse(c)
		default:
			response.InternalError(c, "语音合成失败")
		}
		return
	}
	defer stream.Close()

	relayStream(c, stream, contentType)
}

// DescribeImage 图像描述
// POST /api/describe-image
func (h *SpeechHandler) DescribeImage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "缺少图片文件")
		return
	}
	if fileHeader.Size > maxUploadSize {
		response.BadRequest(c, "图片文件过大")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "图片文件读取失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(c, "图片文件读取失败")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	description, err := h.speechService.DescribeImage(c.Request.Context(), data, fileHeader.Filename, contentType)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrUnavailable):
			response.AIUnavailable(c)
		case errors.Is(err, gateway.ErrBadResponse):
			response.AIBadResponse(c)
		default:
			response.InternalError(c, "图像描述失败")
		}
		return
	}

	response.Success(c, gin.H{"description": description})
}
