// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"coldnet-server/internal/audio"
)

// ErrAudioProcessing 音频预处理失败
var ErrAudioProcessing = errors.New("音频预处理失败")

// SpeechGateway 语音和图像服务依赖的 AI 网关能力
type SpeechGateway interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error)
	DescribeImage(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// SpeechService 语音识别、语音合成和图像描述服务
// 语音识别前先在本地做音频归一化，其余直接代理给 AI 服务端
type SpeechService struct {
	ai         SpeechGateway     // AI 网关客户端
	normalizer *audio.Normalizer // ffmpeg 音频归一化器
}

// NewSpeechService 创建 SpeechService 实例
func NewSpeechService(ai SpeechGateway, normalizer *audio.Normalizer) *SpeechService {
	return &SpeechService{
		ai:         ai,
		normalizer: normalizer,
	}
}

// Transcribe 语音识别
// 先把上传的音频归一化为 16kHz 单声道 WAV（带增强滤镜，
// 失败时降级为纯重采样重试一次），再上传给 STT 接口
// 参数:
//   - ctx: 上下文
//   - data: 原始音频数据
//   - filename: 上传文件名，用于推断格式
//
// 返回:
//   - string: 识别出的文本
//   - error: ErrAudioProcessing 或网关错误
func (s *SpeechService) Transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	wav, err := s.normalizer.Normalize(ctx, data, ext)
	if err != nil {
		return "", errors.Join(ErrAudioProcessing, err)
	}

	return s.ai.Transcribe(ctx, wav)
}

// Synthesize 语音合成
// 结果以流的形式返回，调用方逐块转发，不缓冲整个音频
// 返回:
//   - io.ReadCloser: 音频字节流（调用方负责关闭）
//   - string: Content-Type
//   - error: 网关错误
func (s *SpeechService) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	return s.ai.Synthesize(ctx, text)
}

// DescribeImage 图像描述
// 把上传的图片透传给 AI 服务端，返回描述文本
func (s *SpeechService) DescribeImage(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	return s.ai.DescribeImage(ctx, data, filename, contentType)
}
