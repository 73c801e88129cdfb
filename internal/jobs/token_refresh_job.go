package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	config "github.com/pagecast/pagecast/configs"
	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/repository"
	"github.com/pagecast/pagecast/pkg/utils"
)

// TokenRefreshJob refreshes target credentials that expire within the next
// half hour, so publish jobs never run with a stale token.
type TokenRefreshJob struct {
	tr  repository.TargetRepository
	cfg config.Config
}

func NewTokenRefreshJob(tr repository.TargetRepository, cfg config.Config) *TokenRefreshJob {
	return &TokenRefreshJob{tr: tr, cfg: cfg}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	targets, err := j.tr.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, target := range targets {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(target *models.Target) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.refreshOne(ctx, target); err != nil {
				slog.Warn("unable to refresh target token", "target_id", target.ID, "platform", target.Platform, "error", err)
			}
		}(target)
	}

	wg.Wait()
}

func (j *TokenRefreshJob) refreshOne(ctx context.Context, target *models.Target) error {
	refreshToken, err := utils.Decrypt(target.RefreshToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	conf := &oauth2.Config{
		ClientID:     j.cfg.PlatformClientID,
		ClientSecret: j.cfg.PlatformSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: j.cfg.PlatformTokenURL},
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return err
	}

	encryptedAccess, err := utils.Encrypt([]byte(token.AccessToken), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	encryptedRefresh, err := utils.Encrypt([]byte(newRefresh), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	return j.tr.UpdateTokens(ctx, target.ID, encryptedAccess, encryptedRefresh, token.Expiry)
}
