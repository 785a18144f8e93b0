package mcp

// ToolDefinitions returns the MCP tool definitions for the chatbot server.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "chat_message",
			Description: "Ask the Alta New York assistant a question. The answer is grounded in the " +
				"knowledge base and keeps conversation history per session. Reuse the returned " +
				"conversationId as sessionId to continue the same conversation.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"message":   {Type: "string", Description: "The user's question"},
					"sessionId": {Type: "string", Description: "Conversation to continue; omit to start a new one"},
					"searchMode": {Type: "string", Description: "Knowledge lookup mode",
						Enum: []string{"semantic", "exact"}, Default: "semantic"},
					"translationEnabled": {Type: "boolean", Description: "Translate the question to English and the answer back",
						Default: false},
				},
				Required: []string{"message"},
			},
		},
		{
			Name: "knowledge_search",
			Description: "Search the knowledge base directly without generating an answer. " +
				"Returns matching chunks with scores and source filenames.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "Search query"},
					"mode": {Type: "string", Description: "Search strategy",
						Enum: []string{"semantic", "exact", "hybrid"}, Default: "semantic"},
					"topK": {Type: "number", Description: "Maximum results to return (default 5)",
						Default: 5},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "chat_history",
			Description: "Return the stored turns of a conversation, oldest first.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"sessionId": {Type: "string", Description: "Conversation id"},
				},
				Required: []string{"sessionId"},
			},
		},
	}
}
