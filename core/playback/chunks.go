package playback

import (
	"strings"
	"unicode/utf8"
)

const DefaultMaxChunkLength = 200

// SplitIntoChunks splits text into speakable chunks of at most maxLength
// characters. Sentences (ending in '.', '!' or '?' followed by whitespace)
// are packed into chunks whole where possible; a longer sentence is split
// between words. A word is never split, so a single word longer than
// maxLength becomes its own chunk. Joining the chunks with single spaces
// yields text with its whitespace collapsed.
func SplitIntoChunks(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxChunkLength
	}

	var chunks []string
	var current strings.Builder
	currentLength := 0

	flush := func() {
		if currentLength > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLength = 0
		}
	}
	appendText := func(s string, length int) {
		if currentLength > 0 {
			current.WriteByte(' ')
			currentLength++
		}
		current.WriteString(s)
		currentLength += length
	}

	for _, sentence := range splitSentences(text) {
		sentenceLength := utf8.RuneCountInString(sentence)
		if sentenceLength <= maxLength {
			if currentLength > 0 && currentLength+1+sentenceLength > maxLength {
				flush()
			}
			appendText(sentence, sentenceLength)
			continue
		}

		flush()
		for _, word := range strings.Fields(sentence) {
			wordLength := utf8.RuneCountInString(word)
			if currentLength > 0 && currentLength+1+wordLength > maxLength {
				flush()
			}
			appendText(word, wordLength)
		}
		flush()
	}
	flush()

	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var words []string
	for _, word := range strings.Fields(text) {
		words = append(words, word)
		if strings.ContainsRune(".!?", lastRune(word)) {
			sentences = append(sentences, strings.Join(words, " "))
			words = words[:0]
		}
	}
	if len(words) > 0 {
		sentences = append(sentences, strings.Join(words, " "))
	}
	return sentences
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}
