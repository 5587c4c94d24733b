package llm

import (
	"fmt"
	"strings"
)

const systemRules = `You are an expert OCR and form-understanding assistant.

You receive a scanned page of a form that contains both printed labels and handwritten responses.
Your job:
1. Extract ONLY the handwritten or user-entered responses.
2. Match each extracted response exactly to the JSON schema provided.
3. If a field is blank, illegible, or missing, return null.
4. Do NOT guess or copy printed text.
5. Return only valid JSON that fits the schema structure exactly.
6. For checkboxes, return the marked options.
7. Normalize dates to YYYY-MM-DD and phone numbers to E.164 if possible.

Return strictly valid JSON. Do not include comments, trailing commas, or extra text.`

// BuildSystemPrompt composes the extraction rules with the page's schema text.
func BuildSystemPrompt(schemaText string) string {
	var b strings.Builder
	b.WriteString(systemRules)
	if s := strings.TrimSpace(schemaText); s != "" {
		b.WriteString("\n\nJSON schema:\n")
		b.WriteString(s)
	}
	return b.String()
}

// BuildPagePrompt tells the model which page of the form it is looking at.
func BuildPagePrompt(page int) string {
	return fmt.Sprintf("This is page %d of a multi-page form.\n"+
		"Extract only the handwritten or user-entered responses visible on this page.\n"+
		"Return valid JSON according to the provided schema.", page)
}
