package ai

import (
	"context"
	"encoding/json"
	"loom/common"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/time/rate"
)

var (
	DecomposeFunc = Decompose

	// outbound chat-completion calls are throttled process-wide
	decomposeLimiter = rate.NewLimiter(rate.Limit(2), 5)

	fencedJSONPattern = regexp.MustCompile("```json([\\s\\S]*?)```")
)

const (
	DefaultAPIURL = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel  = "deepseek-chat"

	systemPrompt = "You are a workflow decomposition assistant. " +
		"You break a user-described business workflow down into concrete steps."
	userPromptPrefix = "Decompose the following workflow description into concrete steps. " +
		"Return them as JSON, each step with its name, description, type and required inputs:\n\n"

	samplingTemperature = 0.7
)

type ClientConfig struct {
	APIURL string
	APIKey string
	Model  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Decompose asks the chat-completion API to break the description into steps.
// It never fails: any transport, protocol or parse problem is logged and the
// empty step list is returned, so workflow creation can proceed without steps.
func Decompose(ctx context.Context, description string, config ClientConfig) []map[string]interface{} {
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	if err := decomposeLimiter.Wait(ctx); err != nil {
		common.Log.Warnf("workflow decomposition throttled out: %v", err)
		return []map[string]interface{}{}
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPromptPrefix + description},
		},
		Temperature: samplingTemperature,
	})
	if err != nil {
		common.Log.Warnf("failed to build decomposition request: %v", err)
		return []map[string]interface{}{}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+config.APIKey)
	respBody, err := common.HttpInvokeJson(ctx, http.MethodPost, config.APIURL, headers, string(reqBody))
	if err != nil {
		common.Log.Warnf("workflow decomposition call failed: %v", err)
		return []map[string]interface{}{}
	}

	resp := chatResponse{}
	if err := json.Unmarshal([]byte(respBody), &resp); err != nil || len(resp.Choices) == 0 {
		common.Log.Warnf("unexpected decomposition response: %v", err)
		return []map[string]interface{}{}
	}

	return ParseSteps(resp.Choices[0].Message.Content)
}

// ParseSteps extracts the step list from the assistant's reply: a fenced
// ```json block when present, otherwise the first brace-delimited substring.
// The payload must be a JSON array; anything else yields the empty list.
func ParseSteps(content string) []map[string]interface{} {
	fragment := ExtractJSONFragment(content)
	if fragment == "" {
		common.Log.Warn("no JSON fragment in decomposition reply")
		return []map[string]interface{}{}
	}

	steps := []map[string]interface{}{}
	if err := json.Unmarshal([]byte(fragment), &steps); err != nil {
		common.Log.Warnf("decomposition reply is not a step list: %v", err)
		return []map[string]interface{}{}
	}
	return steps
}

func ExtractJSONFragment(content string) string {
	if m := fencedJSONPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	begin := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if begin >= 0 && end > begin {
		return content[begin : end+1]
	}
	return ""
}
