package tray

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/imagefetch"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/storage"
)

const (
	StyleDefault    = "default"
	StyleBigPicture = "big_picture"

	SoundDefault = "default"
	PriorityHigh = "high"
)

// Surface is where notifications end up, the tray.
type Surface interface {
	PostNotification(ctx context.Context, n *storage.Notification) error
}

type Presenter struct {
	channels      *ChannelRegistry
	surface       Surface
	ids           *IDSource
	channel       storage.Channel
	landingScreen string
	logger        *zap.Logger
}

func NewPresenter(channels *ChannelRegistry, surface Surface, ids *IDSource, channel storage.Channel, landingScreen string, logger *zap.Logger) *Presenter {
	if channel.Importance == "" {
		channel.Importance = ImportanceHigh
	}
	return &Presenter{
		channels:      channels,
		surface:       surface,
		ids:           ids,
		channel:       channel,
		landingScreen: landingScreen,
		logger:        logger.Named("presenter"),
	}
}

func (p *Presenter) Channel() storage.Channel {
	return p.channel
}

// Build turns an intent into a tray entry without posting it. bmp may be nil.
func (p *Presenter) Build(intent push.Intent, bmp *imagefetch.Bitmap) *storage.Notification {
	var id int32
	if intent.CollapseID != "" {
		id = CollapseID(intent.CollapseID)
	} else {
		id = p.ids.Next()
	}

	n := &storage.Notification{
		ID:          id,
		ChannelID:   p.channel.ID,
		MessageID:   intent.MessageID,
		Type:        intent.Type,
		Title:       intent.Title,
		Body:        intent.Body,
		Style:       StyleDefault,
		Sound:       SoundDefault,
		Priority:    PriorityHigh,
		AutoCancel:  true,
		TapScreen:   p.landingScreen,
		TapClearTop: true,
	}

	if bmp != nil {
		n.Style = StyleBigPicture
		n.Summary = intent.Body
		n.ImageURL = intent.ImageURL
		n.ImageFormat = bmp.Format
		n.ImageWidth = bmp.Width
		n.ImageHeight = bmp.Height
	}
	return n
}

// Present posts the intent to the tray, registering the channel first.
func (p *Presenter) Present(ctx context.Context, intent push.Intent, bmp *imagefetch.Bitmap) (*storage.Notification, error) {
	if !intent.Presentable() {
		return nil, fmt.Errorf("notification needs a title and a body")
	}

	if err := p.channels.Ensure(ctx, p.channel); err != nil {
		return nil, fmt.Errorf("error creating channel %s: %w", p.channel.ID, err)
	}

	n := p.Build(intent, bmp)
	if err := p.surface.PostNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("error posting notification: %w", err)
	}

	p.logger.Info("Notification shown",
		zap.Int32("notification_id", n.ID),
		zap.String("message_id", n.MessageID),
		zap.String("title", n.Title),
		zap.String("style", n.Style))
	return n, nil
}
