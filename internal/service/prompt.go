package service

import "strings"

const answerInstructions = `You are a helpful assistant for university students, answering questions about campus life, academics, events, and facilities.
Answer the question based ONLY on the context provided below.

Guidelines:
- If the context doesn't contain relevant information to answer the question, say "I don't have specific information about that in my knowledge base."
- Be specific: keep exact dates, times, locations, deadlines, and names from the context.
- If different parts of the context disagree, say so and present each version.
- Use a bulleted or numbered list when the answer has several items or steps.
- Do not cite document names or sources in your answer; they are shown to the user separately.`

// BuildPrompt embeds the retrieved context and the user's question, as they wrote it,
// into the answer template.
func BuildPrompt(passageContext, question string) string {
	var sb strings.Builder

	sb.WriteString(answerInstructions)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(passageContext)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")

	return sb.String()
}

// BuildSummaryPrompt asks for a plain summary of the context for the query.
func BuildSummaryPrompt(passageContext, question string) string {
	return "Summarize the following context for the query: '" + question + "'\n\nContext:\n" +
		passageContext + "\n\nSummary:"
}
