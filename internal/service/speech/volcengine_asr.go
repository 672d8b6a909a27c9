package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/config"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
)

const (
	volcResourceDuration   = "volc.bigasr.sauc.duration"
	volcResourceConcurrent = "volc.bigasr.sauc.concurrent"
	volcSuccessCode        = 20000000
	// 16kHz, 16bit, mono, 200ms
	volcChunkSize = 6400
)

// VolcengineASRClient 火山引擎大模型语音识别 WebSocket 客户端
type VolcengineASRClient struct {
	cfg      config.VolcengineASRConfig
	language string
	timeout  time.Duration
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

type volcASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type volcASRResult struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"` // ms
	} `json:"audio_info"`
}

// NewVolcengineASRClient 创建火山引擎 ASR 客户端
func NewVolcengineASRClient(cfg config.SpeechConfig, logger *zap.Logger) (*VolcengineASRClient, error) {
	if !cfg.Volcengine.Enabled() {
		return nil, errors.New("火山引擎语音配置缺少 VOLC_APP_ID 或 VOLC_ACCESS_TOKEN")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineASRClient{
		cfg:      cfg.Volcengine,
		language: cfg.Language,
		timeout:  cfg.Timeout,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:   logger.Named("VolcengineASR"),
	}, nil
}

// Transcribe 发送一段完整语音并返回最终识别文本
func (c *VolcengineASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req == nil || req.AudioData == nil {
		return nil, errors.New("audio data is required")
	}
	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("no audio data to send")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", strings.TrimSpace(c.cfg.AppID))
	header.Set("X-Api-Access-Key", strings.TrimSpace(c.cfg.AccessToken))
	resourceID := volcResourceDuration
	if c.cfg.ConcurrentMode {
		resourceID = volcResourceConcurrent
	}
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", req.SessionID)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()
	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		c.logger.Debug("asr connected", zap.String("session", req.SessionID), zap.String("logid", logid))
	}

	if err := c.sendRequest(conn, req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 接收与发送并发进行，服务端提前报错时可以停止发送
	respCh := make(chan *speech.ASRResponse, 1)
	recvErrCh := make(chan error, 1)
	go func() {
		result, err := c.receiveResults(conn, req.SessionID)
		if err != nil {
			recvErrCh <- err
			return
		}
		respCh <- result
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.sendAudio(ctx, conn, audio)
	}()

	for {
		select {
		case err := <-sendErrCh:
			if err != nil {
				return nil, fmt.Errorf("failed to send audio data: %w", err)
			}
			sendErrCh = nil
		case result := <-respCh:
			return result, nil
		case err := <-recvErrCh:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *VolcengineASRClient) sendRequest(conn *websocket.Conn, req *speech.ASRRequest) error {
	var body volcASRRequest
	body.User.UID = req.SessionID
	body.Audio.Format = req.Format
	if body.Audio.Format == "" {
		body.Audio.Format = "wav"
	}
	body.Audio.Codec = "raw"
	if body.Audio.Format == "ogg" {
		body.Audio.Codec = "opus"
	}
	body.Audio.Language = volcLanguage(req.Language, c.language)
	body.Audio.Rate = 16000
	body.Audio.Bits = 16
	body.Audio.Channel = 1
	body.Request.ModelName = "bigmodel"
	body.Request.EnableITN = true
	body.Request.EnablePunc = true
	body.Request.ShowUtterances = true
	body.Request.ResultType = "full"
	body.Request.EndWindowSize = 800

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := compressPayload(payload, GzipCompression)
	if err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(newFullClientRequest(compressed))); err != nil {
		return fmt.Errorf("failed to send ASR request: %w", err)
	}
	return nil
}

// sendAudio 分包发送音频，首包占用序号 1，音频从 2 开始
func (c *VolcengineASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for start := 0; start < len(audio); start += volcChunkSize {
		end := min(start+volcChunkSize, len(audio))
		isLast := end == len(audio)

		chunk, err := compressPayload(audio[start:end], GzipCompression)
		if err != nil {
			return fmt.Errorf("failed to compress audio chunk: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(newAudioOnlyRequest(chunk, sequence, isLast))); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++
		if isLast {
			return nil
		}

		if c.cfg.ChunkInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ChunkInterval):
			}
		}
	}
	return nil
}

// receiveResults 读取识别结果直到最后一包. 连接关闭时 ReadMessage 返回错误
func (c *VolcengineASRClient) receiveResults(conn *websocket.Conn, sessionID string) (*speech.ASRResponse, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}
		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, err := decompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("ASR error message decode failed: %w", err)
			}
			return nil, fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := decompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}
			var result volcASRResult
			if err := json.Unmarshal(payload, &result); err != nil {
				c.logger.Warn("ignoring unreadable asr result", zap.String("session", sessionID), zap.Error(err))
				continue
			}
			if result.Code != 0 && result.Code != volcSuccessCode {
				return nil, fmt.Errorf("ASR API error %d: %s", result.Code, result.Message)
			}

			candidate := result.Result.Text
			if candidate == "" {
				parts := make([]string, 0, len(result.Result.Utterances))
				for _, u := range result.Result.Utterances {
					parts = append(parts, u.Text)
				}
				candidate = strings.Join(parts, " ")
			}
			if candidate != "" {
				text = candidate
			}
			if result.AudioInfo.Duration > 0 {
				duration = result.AudioInfo.Duration
			}

			if msg.IsLastPacket() || result.Sequence < 0 {
				return &speech.ASRResponse{
					SessionID: sessionID,
					Text:      strings.TrimSpace(text),
					Duration:  float64(duration) / 1000,
					CreatedAt: time.Now().UTC(),
				}, nil
			}
		}
	}
}

// volcLanguage 火山引擎需要带地区的语言标签，如 en-US
func volcLanguage(tag, fallback string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = strings.TrimSpace(fallback)
	}
	switch strings.ToLower(tag) {
	case "", "en":
		return "en-US"
	case "zh":
		return "zh-CN"
	}
	return tag
}
