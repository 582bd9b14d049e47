package notify

import (
	"fmt"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

type Discord struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	session *discordgo.Session
}

func New(log logger.Logger, cfg *config.AppConfig) *Discord {
	return &Discord{
		log: log.With().Str("module", "notify").Logger(),
		cfg: cfg,
	}
}

func (d *Discord) Open() error {
	var err error

	d.log.Info().Msg("logging in using the provided bot token...")

	d.session, err = discordgo.New("Bot " + d.cfg.Config.DiscordToken)
	if err != nil {
		return err
	}
	d.log.Info().Msg("successfully logged in")

	d.log.Debug().Msg("creating websocket connection...")
	err = d.session.Open()
	if err != nil {
		return err
	}
	d.log.Debug().Msg("successfully created websocket connection")

	err = d.session.UpdateCustomStatus("Watching for new chapters")
	if err != nil {
		return err
	}
	d.log.Trace().Msg("successfully updated custom status")

	return nil
}

func (d *Discord) Close() error {
	err := d.session.Close()
	if err != nil {
		return err
	}

	return nil
}

// SendNewChapterNotification announces one freshly synced chapter.
func (d *Discord) SendNewChapterNotification(title string, chapter domain.ChapterSummary) error {
	description := fmt.Sprintf("Chapter %s is now available", formatNumber(chapter.Number))
	if chapter.Provider != "" && chapter.Provider != "Unknown" {
		description += " from " + chapter.Provider
	}

	footer := ""
	if chapter.UploadDate != nil {
		footer = "Released at " + *chapter.UploadDate
	}

	return d.sendNotification(d.cfg.Config.DiscordChannelID, title, description, chapter.URL, footer, 3447003)
}

func (d *Discord) SendErrorNotification(error string) error {
	return d.sendNotification(d.cfg.Config.DiscordErrorChannelID, "Error syncing chapters",
		error, "", "", 10038562)
}

func (d *Discord) SendResolvedNotification() error {
	return d.sendNotification(d.cfg.Config.DiscordErrorChannelID, "Error resolved",
		"The previous error has been resolved", "", "", 15105570)
}

func (d *Discord) sendNotification(channelId string, title, description, url, footer string, color int) error {
	_, err := d.session.ChannelMessageSendEmbed(channelId, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		URL:         url,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footer,
		},
		Color: color,
	})
	if err != nil {
		return err
	}

	return nil
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
