package solver

import "strings"

const instructionPrompt = `You are an AI assistant specialized in solving academic question papers. Your task is to analyze the provided question paper text and generate detailed solutions for each question. Please follow these guidelines:

1. Identify each question in the paper and label your solutions accordingly (e.g., Question 1, Question 2, etc.).

2. For each question, provide a clear and concise answer. If the question requires explanation or calculation, include the necessary steps.

3. Format your entire response in Markdown. Use appropriate headings, lists, and code blocks where necessary (e.g., for mathematical equations or code snippets).

4. If there are multiple parts to a question, address each part separately.

5. Ensure that your solutions are accurate and complete.

Begin your response with a title, such as 'Solutions to [Question Paper Title]', if the title is available. Otherwise, use 'Solutions to the Provided Question Paper'.`

const referencePreamble = `Use the provided reference material to ensure your solutions are accurate and aligned with the course material.`

// BuildPrompt assembles the fixed instruction block, the extracted paper text,
// and, when present, the reference material behind a clear section boundary.
func BuildPrompt(primaryText, referenceText string) string {
	var b strings.Builder
	b.WriteString(instructionPrompt)
	b.WriteString("\n\n===== QUESTION PAPER =====\n\n")
	b.WriteString(primaryText)
	if strings.TrimSpace(referenceText) != "" {
		b.WriteString("\n\n===== REFERENCE MATERIAL =====\n\n")
		b.WriteString(referencePreamble)
		b.WriteString("\n\n")
		b.WriteString(referenceText)
	}
	return b.String()
}
