package conversation

import (
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestIsContextTooLarge(t *testing.T) {
	assert.False(t, IsContextTooLarge(nil))
	assert.False(t, IsContextTooLarge(errors.New("boom")))

	assert.True(t, IsContextTooLarge(&openai.APIError{HTTPStatusCode: 413}))
	assert.True(t, IsContextTooLarge(fmt.Errorf("wrap: %w", &openai.APIError{HTTPStatusCode: 413})))
	assert.True(t, IsContextTooLarge(errors.New("Error code: 413 - Request too large")))
	assert.True(t, IsContextTooLarge(errors.New("this model's maximum context length is exceeded")))
}

func TestIsRateLimited(t *testing.T) {
	assert.False(t, IsRateLimited(nil))
	assert.False(t, IsRateLimited(errors.New("boom")))

	assert.True(t, IsRateLimited(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, IsRateLimited(errors.New("rate_limit_exceeded")))
	assert.True(t, IsRateLimited(errors.New("429 Too Many Requests")))
}
