package inference

import (
	"bytes"
	"strings"

	"github.com/bytedance/sonic"
)

// envelope is the subset of the generate response we read.
type envelope struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

const responseField = `"response":"`

// ExtractResponse returns the generated text from a raw response body.
// Each non-empty line is decoded as a JSON envelope and the response fields
// are concatenated, which covers both a single object and NDJSON streams.
// If no line decodes, the text between the response field delimiters is
// returned with \n, \" and \\ unescaped.
func ExtractResponse(body []byte) string {
	var (
		sb      strings.Builder
		decoded bool
	)
	for _, line := range bytes.Split(body, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := sonic.Unmarshal(line, &env); err != nil || env.Response == nil {
			continue
		}
		decoded = true
		sb.WriteString(*env.Response)
	}
	if decoded {
		return sb.String()
	}
	return extractByDelimiters(string(body))
}

func extractByDelimiters(raw string) string {
	start := strings.Index(raw, responseField)
	if start < 0 {
		return raw
	}
	start += len(responseField)
	end := strings.Index(raw[start:], `","`)
	if end < 0 {
		end = strings.Index(raw[start:], `"}`)
	}
	if end < 0 {
		return raw
	}
	s := raw[start : start+end]
	return strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`).Replace(s)
}

// EstimateTokens approximates the token count of s as len(s)/4, rounded up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
