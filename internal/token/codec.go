// Package token encodes ordered chunk lists into compact URL-safe strings
// so a full chunk list can travel as a single query parameter with no
// server-side lookup.
package token

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/awsl-dev/vidstream/internal/models"
)

// Mode selects the wire form of an encoded token.
type Mode int

const (
	// ModeAuto compresses only when the list is long enough to benefit.
	ModeAuto Mode = iota
	// ModePlain renders id1:size1,id2:size2,... verbatim.
	ModePlain
	// ModeCompressed applies raw DEFLATE then unpadded base64url.
	ModeCompressed
)

// Auto mode switches to compression past either threshold.
const (
	autoCompressChunks = 5
	autoCompressLength = 200
)

// DecodeError reports a token that could not be decoded. Segment carries
// the malformed portion for diagnostics; entries are never silently
// dropped on a partial failure.
type DecodeError struct {
	Segment string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode chunk token: %s: %q", e.Reason, e.Segment)
}

// Encode renders an ordered chunk list as a single token. File ids must
// not contain ':' or ','; backend-assigned ids satisfy this.
func Encode(entries []models.ChunkEntry, mode Mode) (string, error) {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.FileID + ":" + strconv.FormatInt(e.ChunkSize, 10)
	}
	plain := strings.Join(parts, ",")

	if mode == ModeAuto {
		if len(entries) > autoCompressChunks || len(plain) > autoCompressLength {
			mode = ModeCompressed
		} else {
			mode = ModePlain
		}
	}
	if mode == ModePlain {
		return plain, nil
	}

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("init deflate: %w", err)
	}
	if _, err := fw.Write([]byte(plain)); err != nil {
		return "", fmt.Errorf("deflate chunk list: %w", err)
	}
	if err := fw.Close(); err != nil {
		return "", fmt.Errorf("flush deflate: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode, auto-detecting the mode: a token containing a
// colon is plain, anything else is treated as compressed.
func Decode(tok string) ([]models.ChunkEntry, error) {
	data := tok
	if !strings.Contains(tok, ":") {
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(tok, "="))
		if err != nil {
			return nil, &DecodeError{Segment: tok, Reason: "invalid base64url"}
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		plain, err := io.ReadAll(fr)
		fr.Close()
		if err != nil {
			return nil, &DecodeError{Segment: tok, Reason: "corrupt compressed stream"}
		}
		data = string(plain)
	}

	var entries []models.ChunkEntry
	for _, seg := range strings.Split(data, ",") {
		if seg == "" {
			continue
		}
		id, sizeStr, ok := strings.Cut(seg, ":")
		if !ok || id == "" {
			return nil, &DecodeError{Segment: seg, Reason: "want file_id:size"}
		}
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, &DecodeError{Segment: seg, Reason: "invalid chunk size"}
		}
		entries = append(entries, models.ChunkEntry{FileID: id, ChunkSize: size})
	}
	return entries, nil
}
