package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/resilience"
	"github.com/sells-group/company-profiler/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 300},
	}
}

func testSchema() model.Schema {
	return model.Schema{Fields: []model.FieldSpec{
		{Key: "annual_revenue", Required: true, Description: "Revenue"},
		{Key: "executives", Required: true, Description: "Executives"},
		{Key: "website_url", Description: "Site"},
	}}
}

func testRequest() Request {
	return Request{
		Identity: model.CompanyIdentity{Name: "Acme Corp", Ticker: "ACME", Location: "Austin, TX"},
		Phase:    model.PhaseRegulatory,
		Round:    1,
		Documents: []model.SourceDocument{
			{URL: "https://sec.gov/acme-10k", Title: "Acme 10-K", Snippet: "Revenue of $10B"},
		},
		Schema: testSchema(),
	}
}

func TestExtract_Success(t *testing.T) {
	t.Parallel()

	ai := new(mockAnthropicClient)
	ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 1 && req.System[0].Cached &&
			strings.Contains(req.System[0].Text, "annual_revenue (required)") &&
			strings.Contains(req.Messages[0].Content, "Ticker: ACME") &&
			strings.Contains(req.Messages[0].Content, "https://sec.gov/acme-10k")
	})).Return(textResponse("```json\n{\"annual_revenue\": \"$10B\", \"executives\": [{\"name\": \"Jane\", \"title\": \"CEO\"}], \"extra\": 1, \"website_url\": null}\n```"), nil)

	c := New(ai, Config{Model: "claude-haiku-4-5-20251001"}, nil)
	res, err := c.Extract(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "$10B", res.Profile["annual_revenue"])
	assert.Len(t, res.Profile["executives"], 1)
	assert.NotContains(t, res.Profile, "extra")
	assert.NotContains(t, res.Profile, "website_url")
	assert.Equal(t, 1200, res.Usage.InputTokens)
	assert.Greater(t, res.Usage.CostUSD, 0.0)
	ai.AssertExpectations(t)
}

func TestExtract_MalformedOutput(t *testing.T) {
	t.Parallel()

	ai := new(mockAnthropicClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not find anything useful."), nil)

	_, err := New(ai, Config{}, nil).Extract(context.Background(), testRequest())
	require.Error(t, err)

	var ee *model.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "malformed output", ee.Reason)
	assert.Equal(t, model.PhaseRegulatory, ee.Phase)
	assert.Equal(t, 1, ee.Round)
}

func TestExtract_CollaboratorError(t *testing.T) {
	t.Parallel()

	ai := new(mockAnthropicClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := New(ai, Config{}, nil).Extract(context.Background(), testRequest())
	assert.True(t, model.IsExtraction(err))
	assert.Contains(t, err.Error(), "overloaded")
	ai.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestExtract_Timeout(t *testing.T) {
	t.Parallel()

	ai := new(mockAnthropicClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := New(ai, Config{Timeout: 10 * time.Millisecond}, nil).Extract(context.Background(), testRequest())
	var ee *model.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "timeout", ee.Reason)
}

func TestExtract_BreakerOpen(t *testing.T) {
	t.Parallel()

	ai := new(mockAnthropicClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	b := resilience.NewBreaker("anthropic", 1, time.Hour)
	c := New(ai, Config{}, b)
	_, _ = c.Extract(context.Background(), testRequest())

	_, err := c.Extract(context.Background(), testRequest())
	var ee *model.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "provider unavailable", ee.Reason)
	ai.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestExtract_EmptySchema(t *testing.T) {
	t.Parallel()

	req := testRequest()
	req.Schema = model.Schema{}
	_, err := New(new(mockAnthropicClient), Config{}, nil).Extract(context.Background(), req)
	assert.True(t, model.IsExtraction(err))
}

func TestParseProfile(t *testing.T) {
	t.Parallel()

	schema := testSchema()

	p, err := ParseProfile(`Here you go: {"profile": {"annual_revenue": 5}} thanks`, schema)
	require.NoError(t, err)
	assert.Equal(t, 5.0, p["annual_revenue"])

	p, err = ParseProfile(`{}`, schema)
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = ParseProfile(`{"annual_revenue": }`, schema)
	assert.Error(t, err)

	_, err = ParseProfile(``, schema)
	assert.Error(t, err)
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":{"b":2}}`, cleanJSON(`prefix {"a":{"b":2}} suffix`))
	assert.Equal(t, "no json", cleanJSON("no json"))
}

func TestUserPrompt_TruncatesContext(t *testing.T) {
	t.Parallel()

	req := testRequest()
	req.Documents = nil
	for i := 0; i < 50; i++ {
		req.Documents = append(req.Documents, model.SourceDocument{
			URL:     "https://example.com/" + strings.Repeat("x", 5),
			Title:   "Doc",
			Content: strings.Repeat("lorem ipsum ", 100),
		})
	}
	out := userPrompt(req, 5000)
	assert.LessOrEqual(t, len(out), 5001)
	assert.Contains(t, out, "[1] Doc")
	assert.NotContains(t, out, "[50] Doc")

	req.Documents = nil
	assert.Contains(t, userPrompt(req, 5000), "(none found)")
}

func TestSystemPrompt_ListsEveryField(t *testing.T) {
	t.Parallel()

	sp := systemPrompt(testSchema())
	for _, k := range testSchema().Keys() {
		assert.Contains(t, sp, "- "+k+" (")
	}
	assert.Contains(t, sp, "website_url (optional)")
}
