package memory

import "fmt"

// RewritePrompt builds the query-rewriting prompt sent to the upstream
// LLM: contextBlock is the output of buildContextBlock, query is the
// user's original text.
func RewritePrompt(contextBlock, query string) string {
	return fmt.Sprintf(`You are a query rewriting assistant. Your task is to rewrite the user's query based on the conversation context.

## Conversation Context:
%s

## Original User Query:
%s

## Instructions:
1. If the conversation context contains relevant information that helps clarify or complete the user's intent, rewrite the query to incorporate that context.
2. If the conversation context is NOT relevant to the current query, return the original query as-is (or fix only grammatical errors if needed).
3. For simple greetings like "hello", "hi", etc., return the original query unchanged.
4. Do NOT add any explanations, context, or markdown formatting.
5. Output ONLY the rewritten query.

## Rewritten Query:`, contextBlock, query)
}

// ExtractPrompt builds the salient-fact extraction prompt for the
// current exchange, given the rolling summary and recent-messages block.
func ExtractPrompt(summary, recentMessages, userMsg, aiMsg string) string {
	return fmt.Sprintf(`Summary: %s
Recent: %s

Current Exchange:
User: %s
Assistant: %s

Task: Extract salient facts or updates from the current exchange.
Output as a JSON list of facts.`, summary, recentMessages, userMsg, aiMsg)
}

// DecisionPrompt builds the per-fact ADD/UPDATE/DELETE/NOOP decision
// prompt, given the candidate fact and its nearest existing memories.
func DecisionPrompt(fact string, similar []string) string {
	existing := "None"
	if len(similar) > 0 {
		existing = joinLines(similar)
	}
	return fmt.Sprintf(`Candidate Fact: %s
Existing Similar Memories: %s

Decide operation: ADD, UPDATE, DELETE, or NOOP.
Output ONLY one of those four words.`, fact, existing)
}

// SummaryUpdatePrompt builds the rolling-summary regeneration prompt.
func SummaryUpdatePrompt(oldSummary, userMsg, aiMsg string) string {
	return fmt.Sprintf(`Old Summary: %s
New Messages:
User: %s
Assistant: %s

Task: Update the summary to include new information.`, oldSummary, userMsg, aiMsg)
}

func joinLines(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += "\n"
		}
		out += item
	}
	return out
}
