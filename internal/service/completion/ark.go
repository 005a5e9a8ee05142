package completion

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ArkClient sends the prompt to an eino chat model as a single user message.
type ArkClient struct {
	chatModel model.BaseChatModel
	timeout   time.Duration
}

// NewArkClient wraps chatModel. A zero timeout leaves the deadline to the caller.
func NewArkClient(chatModel model.BaseChatModel, timeout time.Duration) *ArkClient {
	return &ArkClient{chatModel: chatModel, timeout: timeout}
}

func (c *ArkClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", errors.Wrap(err, "generate")
	}
	if resp == nil {
		return "", nil
	}

	log.Debug().Str("component", "ark").Int("length", len(resp.Content)).Msg("completion received")
	return resp.Content, nil
}
