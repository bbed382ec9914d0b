package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/chat"
)

// answerContextChunks caps how many chunks feed the answer prompt.
const answerContextChunks = 20

// answer performs the terminal action: build the context from the chunks
// gathered for the chosen paths, ask for an article, decode it and record
// the result on the exchange.
func (a *Agent) answer(ctx context.Context, pathAliases []int) error {
	aliases := map[int]bool{}
	for _, alias := range pathAliases {
		aliases[alias] = true
	}

	var contextParts []string
	covered := map[int]bool{}
	for _, c := range a.LastExchange().CodeChunks {
		if len(aliases) > 0 && !aliases[c.Alias] {
			continue
		}
		if len(contextParts) >= answerContextChunks {
			break
		}
		contextParts = append(contextParts, c.String())
		covered[c.Alias] = true
	}

	// chosen paths without chunks still anchor the answer
	for _, alias := range pathAliases {
		if covered[alias] {
			continue
		}
		if path, ok := a.PathByAlias(alias); ok {
			contextParts = append(contextParts, fmt.Sprintf("### path alias: %d, path: %s ###", alias, path))
		}
	}

	prompt := answerArticlePrompt(len(pathAliases), strings.Join(contextParts, "\n\n")+"\n\n")

	messages := []chat.Message{
		chat.System(prompt),
		chat.User(a.LastExchange().Query),
	}

	response, err := a.chatWithTimeout(ctx, messages, nil)
	if err != nil {
		return err
	}

	body, conclusion := DecodeArticle(response.Content)
	if conclusion == "" {
		// the footnote is part of the contract; fall back to an explicit
		// request for clarification rather than fabricating one
		conclusion = "I'm sorry, I couldn't find what you were looking for, could you provide more information?"
	}

	a.Update(SetAnswer{Answer: body, Conclusion: conclusion})

	slog.Debug("answer recorded", "query_id", a.QueryID, "paths", len(pathAliases))
	return nil
}
