package pipeline

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"

	"gemini-relay/internal/constants"
	"gemini-relay/internal/monitoring"
	"github.com/tidwall/gjson"
)

// copyResponse forwards the upstream body to the client a line at a time,
// flushing after every line so output is chunk-by-chunk rather than
// whole-body buffered (§4.4). SSE "data: " lines are additionally picked
// apart with gjson for a usageMetadata token count, without a full
// unmarshal of the line.
func copyResponse(dst io.Writer, src io.Reader, model string) error {
	flusher, canFlush := dst.(http.Flusher)

	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, constants.SSEScannerInitialBufferSize)
	scanner.Buffer(buf, constants.SSEScannerMaxBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if _, err := dst.Write(line); err != nil {
			return err
		}
		if _, err := dst.Write([]byte("\n")); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		recordTokenUsage(line, model)
	}
	return scanner.Err()
}

func recordTokenUsage(line []byte, model string) {
	if !bytes.HasPrefix(line, []byte("data: ")) {
		return
	}
	data := bytes.TrimSpace(line[len("data: "):])
	if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
		return
	}
	usage := gjson.GetBytes(data, "usageMetadata")
	if !usage.Exists() {
		return
	}
	if v := usage.Get("promptTokenCount"); v.Exists() {
		monitoring.TokensUsed.WithLabelValues(model, "prompt").Add(v.Float())
	}
	if v := usage.Get("candidatesTokenCount"); v.Exists() {
		monitoring.TokensUsed.WithLabelValues(model, "candidates").Add(v.Float())
	}
	if v := usage.Get("totalTokenCount"); v.Exists() {
		monitoring.TokensUsed.WithLabelValues(model, "total").Add(v.Float())
	}
}

// isEventStream reports whether a response's Content-Type is SSE, the
// only shape copyResponse's line-based token-usage scan applies to.
func isEventStream(contentType string) bool {
	return strings.HasPrefix(contentType, "text/event-stream")
}

// isStreamingPath reports whether the request path targets Gemini's
// streaming action, known upfront from the path alone (e.g.
// ":streamGenerateContent"), so the dispatcher can decide before
// dispatch whether an overall request deadline applies.
func isStreamingPath(path string) bool {
	return strings.Contains(strings.ToLower(path), "stream")
}

// modelFromPath extracts the model segment out of a Gemini-style path
// (/v1beta/models/<model>:generateContent) for metric labeling, falling
// back to "unknown" rather than failing the request over a label value.
func modelFromPath(path string) string {
	const marker = "/models/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "unknown"
	}
	rest := path[idx+len(marker):]
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		rest = rest[:colon]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}
