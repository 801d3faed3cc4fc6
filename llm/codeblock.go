package llm

import (
	"strings"
)

const fence = "```"

// languageTags lists the fence info strings accepted for each sandbox language.
var languageTags = map[string][]string{
	"python": {"python", "python3", "py"},
	"nodejs": {"javascript", "js", "node", "nodejs"},
	"shell":  {"sh", "bash", "shell"},
}

// CodeBlock is one fenced region of a reply.
type CodeBlock struct {
	Info string
	Code string
}

// CodeBlocks returns every fenced block in text, in order. An unterminated
// final block runs to the end of text.
func CodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	rest := text
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			return blocks
		}
		rest = rest[open+len(fence):]

		var block CodeBlock
		lineEnd := strings.IndexByte(rest, '\n')
		inlineClose := strings.Index(rest, fence)
		switch {
		case inlineClose >= 0 && (lineEnd < 0 || inlineClose < lineEnd):
			// ```code``` on a single line has no info string.
			block.Code = rest[:inlineClose]
			blocks = append(blocks, block)
			rest = rest[inlineClose+len(fence):]
			continue
		case lineEnd < 0:
			block.Info = strings.TrimSpace(rest)
			blocks = append(blocks, block)
			return blocks
		}

		block.Info = strings.TrimSpace(rest[:lineEnd])
		body := rest[lineEnd+1:]
		end := strings.Index(body, fence)
		if end < 0 {
			block.Code = body
			blocks = append(blocks, block)
			return blocks
		}
		block.Code = body[:end]
		blocks = append(blocks, block)
		rest = body[end+len(fence):]
	}
}

// ExtractCode returns the source of the first block fenced as language,
// falling back to the first fenced block of any kind. ok is false when the
// reply holds no fenced block with content; callers must then leave the
// current artifact and preview alone.
func ExtractCode(reply, language string) (code string, ok bool) {
	blocks := CodeBlocks(reply)
	if len(blocks) == 0 {
		return "", false
	}

	chosen := blocks[0]
	for _, b := range blocks {
		if matchesLanguage(b.Info, language) {
			chosen = b
			break
		}
	}

	if strings.TrimSpace(chosen.Code) == "" {
		return "", false
	}
	return chosen.Code, true
}

func matchesLanguage(info, language string) bool {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return false
	}
	tag := strings.ToLower(fields[0])
	for _, accepted := range languageTags[language] {
		if tag == accepted {
			return true
		}
	}
	return false
}
