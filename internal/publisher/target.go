package publisher

import (
	"context"
	"fmt"

	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/platform"
	"github.com/pagecast/pagecast/pkg/utils"
)

// TargetPublisher executes one call against one external target.
type TargetPublisher interface {
	Publish(ctx context.Context, target *models.Target, content platform.PostContent) (remoteID string, err error)
	Comment(ctx context.Context, target *models.Target, remoteID, text string) (commentID string, err error)
}

// platformPublisher adapts the platform client to stored targets,
// decrypting the account token per call.
type platformPublisher struct {
	client    *platform.Client
	secretKey string
}

func NewPlatformPublisher(client *platform.Client, secretKey string) TargetPublisher {
	return &platformPublisher{client: client, secretKey: secretKey}
}

func (p *platformPublisher) Publish(ctx context.Context, target *models.Target, content platform.PostContent) (string, error) {
	token, err := p.token(target)
	if err != nil {
		return "", err
	}
	return p.client.Publish(ctx, target.AccountID, token, content)
}

func (p *platformPublisher) Comment(ctx context.Context, target *models.Target, remoteID, text string) (string, error) {
	token, err := p.token(target)
	if err != nil {
		return "", err
	}
	return p.client.Comment(ctx, remoteID, token, text)
}

func (p *platformPublisher) token(target *models.Target) (string, error) {
	token, err := utils.Decrypt(target.AccessToken, []byte(p.secretKey))
	if err != nil {
		return "", fmt.Errorf("decrypt token for target %d: %w", target.ID, err)
	}
	return token, nil
}
