// Package ws implements the streaming transport for document processing.
// The client opens a socket, authenticates in its first message, delivers
// the document, and receives notices and solution fragments as plain text.
package ws

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"nhooyr.io/websocket"

	"server/internal/domain"
)

// Frame modes a client may announce for the follow-up document message.
const (
	ModeBinary = "binary"
	ModeBase64 = "base64"
)

// Hello is the client's first message. The document may arrive inline under
// one of several accepted keys, or in a follow-up frame whose encoding Mode
// announces.
type Hello struct {
	Token    string
	Mode     string
	Filename string
	Inline   []byte
}

type helloPayload struct {
	Token    string          `json:"token"`
	Mode     string          `json:"mode"`
	Filename string          `json:"filename"`
	FileData json.RawMessage `json:"file_data"`
	File     json.RawMessage `json:"file"`
	PDF      json.RawMessage `json:"pdf"`
	Data     json.RawMessage `json:"data"`
}

// ParseHello decodes the first client message. A bare non-JSON token is a
// legacy form accepted only when allowBare is set.
func ParseHello(raw []byte, allowBare bool) (*Hello, error) {
	var p helloPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return nil, fmt.Errorf("%w: empty first message", domain.ErrValidation)
		}
		if !allowBare {
			return nil, fmt.Errorf("%w: first message must be a JSON object", domain.ErrValidation)
		}
		return &Hello{Token: token}, nil
	}

	h := &Hello{Token: p.Token, Mode: p.Mode, Filename: p.Filename}
	if h.Mode == "" {
		h.Mode = ModeBinary
	}
	if h.Mode != ModeBinary && h.Mode != ModeBase64 {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, h.Mode)
	}
	for _, raw := range []json.RawMessage{p.FileData, p.File, p.PDF, p.Data} {
		if len(raw) == 0 {
			continue
		}
		inline, err := decodeInline(raw)
		if err != nil {
			return nil, err
		}
		h.Inline = inline
		break
	}
	return h, nil
}

// decodeInline accepts either a base64 string or {"base64": "..."}.
func decodeInline(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decodeBase64(s)
	}
	var obj struct {
		Base64 string `json:"base64"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Base64 != "" {
		return decodeBase64(obj.Base64)
	}
	return nil, fmt.Errorf("%w: unsupported inline document encoding", domain.ErrValidation)
}

// DecodeFrame interprets the follow-up document frame according to the
// announced mode.
func DecodeFrame(mode string, msgType websocket.MessageType, data []byte) ([]byte, error) {
	switch mode {
	case ModeBase64:
		return decodeBase64(string(data))
	default:
		if msgType != websocket.MessageBinary {
			// Some clients send binary payloads as text frames.
			if decoded, err := decodeBase64(string(data)); err == nil {
				return decoded, nil
			}
		}
		return data, nil
	}
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	// Data-URL uploads carry a "data:application/pdf;base64," prefix.
	if idx := strings.Index(s, "base64,"); idx >= 0 {
		s = s[idx+len("base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 document: %v", domain.ErrValidation, err)
	}
	return decoded, nil
}
