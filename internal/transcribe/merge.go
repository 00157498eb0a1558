package transcribe

import "strings"

// Result is one logical transcription assembled from every chunk of a file.
type Result struct {
	Text     string `json:"text"`
	Words    []Word `json:"words"`
	Language string `json:"language,omitempty"`
}

// Merge joins per-chunk responses in chunk order. Texts are joined with a
// single space and word lists are concatenated as returned by the provider:
// timestamps are not shifted by chunk position, so the provider's timestamps
// must already be relative to the whole clip.
func Merge(parts []Response) Result {
	texts := make([]string, len(parts))
	words := []Word{}
	var language string

	for i, p := range parts {
		texts[i] = p.Text
		words = append(words, p.Words...)
		if language == "" && p.Language != "" {
			language = p.Language
		}
	}

	return Result{
		Text:     strings.Join(texts, " "),
		Words:    words,
		Language: language,
	}
}
