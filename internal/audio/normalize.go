// Package audio 提供音频预处理
// 语音识别前把任意格式的上传音频转成 16kHz 单声道 PCM WAV，
// 转换通过外部的 ffmpeg 进程完成
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// Normalizer 音频归一化器
type Normalizer struct {
	ffmpegPath string // ffmpeg 可执行文件路径，通常就是 "ffmpeg"
}

// NewNormalizer 创建 Normalizer 实例
func NewNormalizer(ffmpegPath string) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{ffmpegPath: ffmpegPath}
}

// Normalize 把上传的音频数据转成 16kHz 单声道 PCM WAV
// 先尝试带动态音量归一化滤镜的转换，失败时降级为纯重采样再试一次
// 参数:
//   - ctx: 上下文
//   - data: 原始音频数据
//   - ext: 原始文件的扩展名（含点，如 ".webm"），为空时使用 ".tmp"
//
// 返回:
//   - []byte: WAV 数据
//   - error: 两次转换都失败时返回错误
func (n *Normalizer) Normalize(ctx context.Context, data []byte, ext string) ([]byte, error) {
	if ext == "" {
		ext = ".tmp"
	}

	// 源文件和目标文件都放在系统临时目录，文件名用 UUID 避免冲突
	tmpDir := os.TempDir()
	srcPath := filepath.Join(tmpDir, "stt-"+uuid.NewString()+ext)
	dstPath := filepath.Join(tmpDir, "stt-"+uuid.NewString()+".wav")
	defer os.Remove(srcPath)
	defer os.Remove(dstPath)

	if err := os.WriteFile(srcPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp audio file: %w", err)
	}

	// 1. 带增强滤镜的转换
	// dynaudnorm 做动态音量归一化，volume 再整体提升 3dB
	enhancedArgs := []string{
		"-y",
		"-i", srcPath,
		"-af", "dynaudnorm=f=150:g=15,volume=3dB",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dstPath,
	}
	if err := n.run(ctx, enhancedArgs); err != nil {
		// 2. 滤镜可能因为输入格式不支持而失败，降级为纯重采样重试一次
		plainArgs := []string{
			"-y",
			"-i", srcPath,
			"-ar", "16000",
			"-ac", "1",
			"-c:a", "pcm_s16le",
			dstPath,
		}
		if err := n.run(ctx, plainArgs); err != nil {
			return nil, fmt.Errorf("audio normalization failed: %w", err)
		}
	}

	wav, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read normalized audio: %w", err)
	}
	return wav, nil
}

// run 执行一次 ffmpeg 转换
func (n *Normalizer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)
	// ffmpeg 的输出直接丢弃，失败时 err 中已包含退出码
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}
