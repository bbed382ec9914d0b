package agent

import (
	"fmt"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/tools"
)

// The prompt strings in this file are a protocol, not documentation: the
// model's output is parsed against the formats they demand. Treat any edit
// as a breaking change.

// functionTools declares the function surface. proc is only advertised once
// at least one path is known.
func functionTools(addProc bool) []tools.Tool {
	funcs := []tools.Tool{
		tools.Function(tools.FunctionDefinition{
			Name:        "code",
			Description: "Search the contents of files in a codebase semantically. Results will not necessarily match search terms exactly, but should be related.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The query with which to search. This should consist of keywords that might match something in the codebase, e.g. 'react functional components', 'contextmanager', 'bearer token'. It should NOT contain redundant words like 'usage' or 'example'.",
					},
				},
				"required": []string{"query"},
			},
		}),
		tools.Function(tools.FunctionDefinition{
			Name:        "path",
			Description: "Search the pathnames in a codebase. Use when you want to find a specific file or directory. Results may not be exact matches, but will be similar by some edit-distance.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The query with which path to search. This should consist of keywords that might match a path, e.g. 'server/src'.",
					},
				},
				"required": []string{"query"},
			},
		}),
		tools.Function(tools.FunctionDefinition{
			Name:        "none",
			Description: "Call this to answer the user. Call this only when you have enough information to answer the user's query.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"paths": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":        "integer",
							"description": "The indices of the paths to answer with respect to. Can be empty if the answer is not related to a specific path.",
						},
					},
				},
				"required": []string{"paths"},
			},
		}),
	}

	if addProc {
		funcs = append(funcs, tools.Function(tools.FunctionDefinition{
			Name:        "proc",
			Description: "Read one or more files and extract the line ranges that are relevant to the search terms",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The query with which to search the files.",
					},
					"paths": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":        "integer",
							"description": "The indices of the paths to search. paths.len() <= 5",
						},
					},
				},
				"required": []string{"query", "paths"},
			},
		}))
	}

	return funcs
}

// systemPrompt enumerates the known paths and the tool-use rules.
func systemPrompt(paths []string) string {
	var s strings.Builder

	if len(paths) > 0 {
		s.WriteString("## PATHS ##\nindex, path\n")
		for i, path := range paths {
			fmt.Fprintf(&s, "%d, %s\n", i, path)
		}
		s.WriteString("\n")
	}

	s.WriteString(`Your job is to choose the best action. Call functions to find information that will help answer the user's query. Call functions.none when you have enough information to answer. Follow these rules at all times:

- ALWAYS call a function, DO NOT answer the question directly, even if the query is not in English
- DO NOT call a function that you've used before with the same arguments
- DO NOT assume the structure of the codebase, or the existence of files or folders
- Call functions.none with paths that you are confident will help answer the user's query
- In most cases call functions.code or functions.path functions before calling functions.none
- If the user is referring to, or asking for, information that is in your history, call functions.none
- If after attempting to gather information you are still unsure how to answer the query, call functions.none
- If the query is a greeting, or not a question or an instruction call functions.none
- When calling functions.code or functions.path, your query should consist of keywords. E.g. if the user says 'What does contextmanager do?', your query should be 'contextmanager'. If the user says 'How is contextmanager used in app', your query should be 'contextmanager app'. If the user says 'What is in the src directory', your query should be 'src'
- If functions.code or functions.path did not return any relevant information, call them again with a SIGNIFICANTLY different query. The terms in the new query should not overlap with terms in your old one
- If the output of a function is empty, try calling the function again with DIFFERENT arguments OR try calling a different function
- Only call functions.proc with path indices that are under the PATHS heading above.
- Call functions.proc with paths that might contain relevant information. Either because of the path name, or to expand on code that's already been returned by functions.code. Rank these paths based on their relevancy, and pick only the top five paths, and reject others
- DO NOT call functions.proc with more than 5 paths, it should 5 or less paths
- DO NOT call functions.proc on the same file more than once
- ALWAYS call a function. DO NOT answer the question directly`)

	return s.String()
}

// fileExplanationPrompt asks for relevant line ranges in a numbered file,
// few-shot. The model must answer with a bare JSON array of [start, end]
// pairs.
func fileExplanationPrompt(question, path, code string) string {
	return fmt.Sprintf(`Below are some lines from the file /%s. Each line is numbered.

#####

%s

#####

Your job is to perform the following tasks:
1. Find all the relevant line ranges of code.
2. DO NOT cite line ranges that you are not given above
3. You MUST answer with only line ranges. DO NOT answer the question

Q: find Kafka auth keys
A: [[12,15]]

Q: find where we submit payment requests
A: [[37,50]]

Q: auth code expiration
A: [[486,501],[520,560],[590,631]]

Q: library matrix multiplication
A: [[68,74],[82,85],[103,107],[187,193]]

Q: how combine result streams
A: []

Q: %s
A: `, path, code, question)
}

// answerArticlePrompt constrains the final answer format. The single-path
// and multi-path variants differ: with one path the article links into that
// file only, with several the full linking and XML code-block rules apply.
func answerArticlePrompt(aliasCount int, context string) string {
	if aliasCount == 1 {
		return fmt.Sprintf(`%s#####

A user is looking at the code above, your job is to write an article answering their query.

Your output will be interpreted as codeatlas-markdown which renders with the following rules:
- Inline code must be expressed as a link to the correct line of code using the URL format: `+"`[bar](src/foo.rs#L50)`"+` or `+"`[bar](src/foo.rs#L50-L54)`"+`
- Do NOT output bare symbols. ALL symbols must include a link
  - E.g. Do not simply write `+"`Bar`"+`, write [`+"`Bar`"+`](src/bar.rs#L100-L105).
  - E.g. Do not simply write "Foos are functions that create `+"`Foo`"+` values out of thin air." Instead, write: "Foos are functions that create [`+"`Foo`"+`](src/foo.rs#L80-L120) values out of thin air."
- Only internal links to the current file work
- Basic markdown text formatting rules are allowed, and you should use titles to improve readability

Here is an example response:

A function [`+"`openCanOfBeans`"+`](src/beans/open.py#L7-L19) is defined. This function is used to handle the opening of beans. It includes the variable [`+"`openCanOfBeans`"+`](src/beans/open.py#L9) which is used to store the value of the tin opener.
`, context)
	}

	return fmt.Sprintf(`%sYour job is to answer a query about a codebase using the information above.

Provide only as much information and code as is necessary to answer the query, but be concise. Keep number of quoted lines to a minimum when possible. If you do not have enough information needed to answer the query, do not make up an answer.
When referring to code, you must provide an example in a code block.

Respect these rules at all times:
- Do not refer to paths by alias, expand to the full path
- Link ALL paths AND code symbols (functions, methods, fields, classes, structs, types, variables, values, definitions, directories, etc) by embedding them in a markdown link, with the URL corresponding to the full path, and the anchor following the form `+"`LX`"+` or `+"`LX-LY`"+`, where X represents the starting line number, and Y represents the ending line number, if the reference is more than one line.
  - For example, to refer to lines 50 to 78 in a sentence, respond with something like: The compiler is initialized in [`+"`src/foo.rs`"+`](src/foo.rs#L50-L78)
  - For example, to refer to the `+"`new`"+` function on a struct, respond with something like: The [`+"`new`"+`](src/bar.rs#L26-53) function initializes the struct
  - For example, to refer to the `+"`foo`"+` field on a struct and link a single line, respond with something like: The [`+"`foo`"+`](src/foo.rs#L138) field contains foos. Do not respond with something like [`+"`foo`"+`](src/foo.rs#L138-L138)
  - For example, to refer to a folder `+"`foo`"+`, respond with something like: The files can be found in [`+"`foo`"+`](path/to/foo/) folder
- Do not print out line numbers directly, only in a link
- Do not refer to more lines than necessary when creating a line range, be precise
- Do NOT output bare symbols. ALL symbols must include a link
  - E.g. Do not simply write `+"`Bar`"+`, write [`+"`Bar`"+`](src/bar.rs#L100-L105).
  - E.g. Do not simply write "Foos are functions that create `+"`Foo`"+` values out of thin air." Instead, write: "Foos are functions that create [`+"`Foo`"+`](src/foo.rs#L80-L120) values out of thin air."
- Link all fields
  - E.g. Do not simply write: "It has one main field: `+"`foo`"+`." Instead, write: "It has one main field: [`+"`foo`"+`](src/foo.rs#L193)."
- Link all symbols, even when there are multiple in one sentence
  - E.g. Do not simply write: "Bars are functions that return a list filled with `+"`Bar`"+` variants." Instead, write: "Bars are functions that return a list filled with [`+"`Bar`"+`](src/bar.rs#L38-L57) variants."
- Always begin your answer with an appropriate title
- Always finish your answer with a summary in a [^summary] footnote
  - If you do not have enough information needed to answer the query, do not make up an answer. Instead respond only with a [^summary] footnote that asks the user for more information, e.g. `+"`assistant: [^summary]: I'm sorry, I couldn't find what you were looking for, could you provide more information?`"+`
- Code blocks MUST be displayed to the user using XML in the following formats:
  - Do NOT output plain markdown blocks, the user CANNOT see them
  - To create new code, you MUST mimic the following structure (example given):
###
The following demonstrates logging in JavaScript:
<GeneratedCode>
<Code>
console.log("hello world")
</Code>
<Language>JavaScript</Language>
</GeneratedCode>
###
  - To quote existing code, use the following structure (example given):
###
This is referred to in the Rust code:
<QuotedCode>
<Code>
println!("hello world!");
println!("hello world!");
</Code>
<Language>Rust</Language>
<Path>src/main.rs</Path>
<StartLine>4</StartLine>
<EndLine>5</EndLine>
</QuotedCode>
###
  - `+"`<GeneratedCode>`"+` and `+"`<QuotedCode>`"+` elements MUST contain a `+"`<Language>`"+` value, and `+"`<QuotedCode>`"+` MUST additionally contain `+"`<Path>`"+`, `+"`<StartLine>`"+`, and `+"`<EndLine>`"+`.
  - Note: the line range is inclusive
- When writing example code blocks, use `+"`<GeneratedCode>`"+`, and when quoting existing code, use `+"`<QuotedCode>`"+`.
- You MUST use XML code blocks instead of markdown.`, context)
}
