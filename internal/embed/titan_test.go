package embed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBedrock struct {
	invokeFunc func(in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error)
	inputs     []string
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	var req struct {
		InputText string `json:"inputText"`
	}
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, req.InputText)
	if f.invokeFunc != nil {
		return f.invokeFunc(in)
	}
	body, _ := json.Marshal(map[string]any{
		"embedding":           []float32{float32(len(req.InputText)), 1},
		"inputTextTokenCount": 3,
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestTitan_EmbedDocumentsKeepsOrder(t *testing.T) {
	fb := &fakeBedrock{}
	e := NewTitan(fb, "", 0, nil)

	out, err := e.EmbedDocuments(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "bbb", "cc"}, fb.inputs)
	require.Len(t, out, 3)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(3), out[1][0])
	assert.Equal(t, float32(2), out[2][0])
}

func TestTitan_UsesModelID(t *testing.T) {
	fb := &fakeBedrock{}
	fb.invokeFunc = func(in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
		assert.Equal(t, "amazon.titan-embed-text-v2:0", aws.ToString(in.ModelId))
		return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"embedding":[0.5]}`)}, nil
	}

	_, err := NewTitan(fb, "amazon.titan-embed-text-v2:0", 0, nil).EmbedQuery(context.Background(), "x")
	require.NoError(t, err)
}

func TestTitan_Errors(t *testing.T) {
	fb := &fakeBedrock{}
	fb.invokeFunc = func(*bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
		return nil, errors.New("throttled")
	}
	_, err := NewTitan(fb, "", 0, nil).EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	fb.invokeFunc = func(*bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
		return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"embedding":[]}`)}, nil
	}
	_, err = NewTitan(fb, "", 0, nil).EmbedQuery(context.Background(), "a")
	require.Error(t, err)
}

func TestTitan_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fb := &fakeBedrock{}
	fb.invokeFunc = func(*bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
		return nil, errors.New("service unavailable")
	}
	e := NewTitan(fb, "", 0, nil)

	for range breakerFailures {
		_, err := e.EmbedQuery(context.Background(), "a")
		require.Error(t, err)
	}
	require.Len(t, fb.inputs, breakerFailures)

	_, err := e.EmbedQuery(context.Background(), "a")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, fb.inputs, breakerFailures, "open breaker must not reach bedrock")
}

func TestTitan_RateLimitHonoursContext(t *testing.T) {
	fb := &fakeBedrock{}
	e := NewTitan(fb, "", 0.001, nil)

	_, err := e.EmbedQuery(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.EmbedQuery(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, fb.inputs)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "")
	require.Error(t, err)
}
