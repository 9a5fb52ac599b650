package parser

import "mediachat/internal/models"

// Split cuts every document into overlapping windows of at most chunkSize
// runes. Window ends back off up to a tenth of chunkSize to a space, newline
// or period, and each window starts exactly overlap runes before the end of
// the previous one, so the same input always yields the same boundaries.
func Split(docs []models.Document, chunkSize, overlap int) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		runes := []rune(doc.Content)
		for i, s := range windows(runes, chunkSize, overlap) {
			chunks = append(chunks, models.Chunk{
				Content: string(runes[s.start:s.end]),
				Source:  doc.Metadata.Source,
				Page:    doc.Metadata.Page,
				Index:   i,
				Start:   s.start,
			})
		}
	}
	return chunks
}

// EffectiveOverlap is the overlap Split actually uses for chunkSize.
func EffectiveOverlap(chunkSize, overlap int) int {
	if overlap < 0 {
		return 0
	}
	if overlap > chunkSize/2 {
		return chunkSize / 2
	}
	return overlap
}

type span struct{ start, end int }

func windows(content []rune, maxChars, overlapChars int) []span {
	if maxChars <= 0 || len(content) == 0 {
		return nil
	}
	overlapChars = EffectiveOverlap(maxChars, overlapChars)
	lookBack := maxChars / 10
	contentLen := len(content)

	var spans []span
	start := 0
	for {
		end := min(start+maxChars, contentLen)
		if end < contentLen {
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}
		spans = append(spans, span{start, end})
		if end >= contentLen {
			break
		}
		start = end - overlapChars
	}
	return spans
}
