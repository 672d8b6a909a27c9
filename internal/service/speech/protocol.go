package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion 火山引擎流式语音二进制协议版本
const ProtocolVersion = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	// FullClientRequest 携带识别参数的首包
	FullClientRequest MessageType = 0b0001
	// AudioOnlyRequest 只包含音频数据的请求
	AudioOnlyRequest MessageType = 0b0010
	// FullServerResponse 服务端返回的识别结果
	FullServerResponse MessageType = 0b1001
	// ErrorMessage 服务端错误消息
	ErrorMessage MessageType = 0b1111
)

// MessageFlags 描述 header 之后是否跟随 sequence
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	// LastPacketNoSequence 最后一包，无 sequence
	LastPacketNoSequence MessageFlags = 0b0010
	// NegativeSequenceNumber 最后一包，sequence 为负数
	NegativeSequenceNumber MessageFlags = 0b0011
)

// SerializationMethod 序列化方法
type SerializationMethod uint8

const (
	NoSerialization   SerializationMethod = 0b0000
	JSONSerialization SerializationMethod = 0b0001
)

// CompressionMethod 压缩方法
type CompressionMethod uint8

const (
	NoCompression   CompressionMethod = 0b0000
	GzipCompression CompressionMethod = 0b0001
)

// Header 4 字节消息头，每个字段占半字节
type Header struct {
	ProtocolVersion     uint8
	HeaderSize          uint8 // 以 4 字节为单位
	MessageType         MessageType
	MessageFlags        MessageFlags
	SerializationMethod SerializationMethod
	CompressionMethod   CompressionMethod
}

// Message 一帧二进制消息
type Message struct {
	Header    Header
	Sequence  int32
	ErrorCode uint32
	Payload   []byte
}

func newHeader(msgType MessageType, flags MessageFlags, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     ProtocolVersion,
		HeaderSize:          0b0001,
		MessageType:         msgType,
		MessageFlags:        flags,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
	}
}

func (h Header) encode() []byte {
	return []byte{
		h.ProtocolVersion<<4 | h.HeaderSize,
		uint8(h.MessageType)<<4 | uint8(h.MessageFlags),
		uint8(h.SerializationMethod)<<4 | uint8(h.CompressionMethod),
		0x00,
	}
}

func (h Header) hasSequence() bool {
	switch h.MessageFlags {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

// IsLastPacket 判断是否为最后一包
func (m *Message) IsLastPacket() bool {
	switch m.Header.MessageFlags {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

// EncodeMessage 编码为 header | [sequence] | [error code] | payload size | payload
func EncodeMessage(msg *Message) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 12+len(msg.Payload)))
	buf.Write(msg.Header.encode())

	word := make([]byte, 4)
	if msg.Header.hasSequence() {
		binary.BigEndian.PutUint32(word, uint32(msg.Sequence))
		buf.Write(word)
	}
	if msg.Header.MessageType == ErrorMessage {
		binary.BigEndian.PutUint32(word, msg.ErrorCode)
		buf.Write(word)
	}
	binary.BigEndian.PutUint32(word, uint32(len(msg.Payload)))
	buf.Write(word)
	buf.Write(msg.Payload)
	return buf.Bytes()
}

// DecodeMessage 解码一帧消息
func DecodeMessage(r io.Reader) (*Message, error) {
	raw := make([]byte, 4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h := Header{
		ProtocolVersion:     raw[0] >> 4,
		HeaderSize:          raw[0] & 0x0F,
		MessageType:         MessageType(raw[1] >> 4),
		MessageFlags:        MessageFlags(raw[1] & 0x0F),
		SerializationMethod: SerializationMethod(raw[2] >> 4),
		CompressionMethod:   CompressionMethod(raw[2] & 0x0F),
	}
	if h.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.ProtocolVersion)
	}
	// 跳过 header 扩展
	if extra := int(h.HeaderSize)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	msg := &Message{Header: h}
	readWord := func(what string) (uint32, error) {
		if _, err := io.ReadFull(r, raw); err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", what, err)
		}
		return binary.BigEndian.Uint32(raw), nil
	}

	if h.hasSequence() {
		seq, err := readWord("sequence")
		if err != nil {
			return nil, err
		}
		msg.Sequence = int32(seq)
	}
	if h.MessageType == ErrorMessage {
		code, err := readWord("error code")
		if err != nil {
			return nil, err
		}
		msg.ErrorCode = code
	}
	size, err := readWord("payload size")
	if err != nil {
		return nil, err
	}
	if size > 0 {
		msg.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, fmt.Errorf("failed to read payload (expected %d bytes): %w", size, err)
		}
	}
	return msg, nil
}

// newFullClientRequest 创建携带 JSON 参数的首包
func newFullClientRequest(payload []byte) *Message {
	return &Message{
		Header:  newHeader(FullClientRequest, NoSequenceNumber, JSONSerialization, GzipCompression),
		Payload: payload,
	}
}

// newAudioOnlyRequest 创建音频包，最后一包的 sequence 取负
func newAudioOnlyRequest(audio []byte, sequence int32, isLast bool) *Message {
	flags := PositiveSequenceNumber
	if isLast {
		flags = NegativeSequenceNumber
		sequence = -sequence
	}
	return &Message{
		Header:   newHeader(AudioOnlyRequest, flags, NoSerialization, GzipCompression),
		Sequence: sequence,
		Payload:  audio,
	}
}
