package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, Message{Role: RoleSystem, Content: "s"}, System("s"))
	assert.Equal(t, Message{Role: RoleUser, Content: "u"}, User("u"))
	assert.Equal(t, Message{Role: RoleAssistant, Content: "a"}, Assistant("a"))
	assert.Equal(t, Message{Role: RoleFunction, Name: "code", Content: "r"}, FunctionReturn("code", "r"))

	call := AssistantCall(FunctionCall{Name: "path", Arguments: `{"query":"x"}`})
	assert.Equal(t, RoleAssistant, call.Role)
	assert.Equal(t, "path", call.FunctionCall.Name)
}

func TestIsHideable(t *testing.T) {
	assert.True(t, Assistant("a").IsHideable())
	assert.True(t, FunctionReturn("code", "r").IsHideable())

	assert.False(t, System("s").IsHideable())
	assert.False(t, User("u").IsHideable())
	assert.False(t, AssistantCall(FunctionCall{Name: "code"}).IsHideable())
}

func TestEstimateTokens(t *testing.T) {
	none := EstimateTokens(nil)
	assert.Zero(t, none)

	small := EstimateTokens([]Message{User("hi")})
	large := EstimateTokens([]Message{User("hi"), Assistant(string(make([]byte, 4000)))})
	assert.Greater(t, large, small)
	assert.GreaterOrEqual(t, large, 1000)
}
