package chat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/processor"
)

var greetingPattern = regexp.MustCompile(`^(hi|hello|hey|greetings|good morning|good afternoon|good evening)$`)

// IsGreeting reports whether the whole message is one of the short greetings.
func IsGreeting(message string) bool {
	return greetingPattern.MatchString(strings.ToLower(strings.TrimSpace(message)))
}

func systemPrompt(botName string) string {
	return fmt.Sprintf("You are a helpful assistant for %s. Always format your responses using markdown "+
		"with proper headers, code blocks with language specification, and lists where appropriate. "+
		"Include code examples when discussing technical topics.", botName)
}

const formattingRules = `Please provide a helpful and accurate response based on the context provided. Format your response using the following guidelines:
1. Use markdown headers (#, ##, ###) for section headings
2. Use code blocks with language specification for code snippets (e.g. ` + "```javascript ... ```" + `)
3. Use bullet points or numbered lists for itemized information
4. Use bold or italic text for emphasis where appropriate
5. Include relevant code examples when discussing technical topics
6. Keep explanations clear and concise

Your response should be informative, well-structured, and easy to read.`

// BuildPrompt grounds the question in the retrieved context.
func BuildPrompt(botName, context, question string) llm.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant for %s. Answer the user's question based on the provided context.\n\n", botName)
	fmt.Fprintf(&b, "Context:\n%s\n\n", context)
	fmt.Fprintf(&b, "User Question:\n%s\n\n", question)
	b.WriteString(formattingRules)

	return llm.Prompt{
		System: systemPrompt(botName),
		User:   b.String(),
	}
}

// BuildGreetingPrompt asks for a short reply without any retrieved context.
func BuildGreetingPrompt(botName, greeting string) llm.Prompt {
	return llm.Prompt{
		System: systemPrompt(botName),
		User: fmt.Sprintf("The user greeted you with %q. Reply with a short, friendly greeting as the %s "+
			"assistant and ask how you can help. Do not use headers or lists.", strings.TrimSpace(greeting), botName),
	}
}

// Truncate keeps the first max sentences of text and marks the cut with "...".
func Truncate(text string, max int) string {
	sentences := processor.SplitSentences(text)
	if len(sentences) <= max {
		return text
	}
	return strings.Join(sentences[:max], " ") + "..."
}
