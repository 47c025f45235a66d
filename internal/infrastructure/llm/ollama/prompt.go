package ollama

import (
	"fmt"
	"strings"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// buildAnswerPrompt renders fused results as numbered context blocks. Each
// modality contributes what it actually has: images lead with their caption,
// tables with their structure summary, text goes in raw.
func buildAnswerPrompt(question string, results []domain.FusedResult) string {
	var contextBuilder strings.Builder
	for idx, item := range results {
		fmt.Fprintf(&contextBuilder, "[%d] type=%s score=%.3f", idx+1, item.ContentType, item.HybridScore)
		if source := item.MetaString("document_name"); source != "" {
			fmt.Fprintf(&contextBuilder, " source=%s", source)
		}
		contextBuilder.WriteString("\n")
		contextBuilder.WriteString(renderResult(item))
		contextBuilder.WriteString("\n\n")
	}

	return fmt.Sprintf(`Answer the user question only from the context below.
The context mixes images (described by caption), tables and text passages.
If the context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}

func renderResult(item domain.FusedResult) string {
	switch item.ContentType {
	case domain.ContentTypeImage:
		parts := make([]string, 0, 3)
		if caption := item.MetaString("caption"); caption != "" {
			parts = append(parts, "caption: "+caption)
		}
		if enhanced := item.MetaString("enhanced_description"); enhanced != "" {
			parts = append(parts, enhanced)
		}
		parts = append(parts, item.Content)
		return strings.Join(parts, "\n")
	case domain.ContentTypeTable:
		var b strings.Builder
		if domainName := item.MetaString("business_domain"); domainName != "" {
			b.WriteString("table domain: " + domainName + "\n")
		}
		b.WriteString(item.Content)
		return b.String()
	default:
		return item.Content
	}
}
