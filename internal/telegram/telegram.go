package telegram

import (
	"context"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"suibison/internal/app"
)

type Bot struct {
	Api *gotgbot.Bot
}

func NewBot(token string) (*Bot, error) {
	api, err := gotgbot.NewBot(token, nil)
	if err != nil {
		return nil, err
	}

	return &Bot{
		Api: api,
	}, nil
}

type sender interface {
	SendMessage(chatId int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

// Finance posts operator alerts to the finance chat, stamped with the UTC send time.
type Finance struct {
	api    sender
	chatId int64
}

func NewFinance(bot *Bot, chatId int64) *Finance {
	return &Finance{api: bot.Api, chatId: chatId}
}

func (f *Finance) Notify(_ context.Context, text string) error {
	body := EscapeMarkdownV2(text) + "\n_" + EscapeMarkdownV2(app.CurrentMessageTime()+" UTC") + "_"
	_, err := f.api.SendMessage(f.chatId, body, &gotgbot.SendMessageOpts{
		ParseMode: "MarkdownV2",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	return err
}

var specialChars = []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

func EscapeMarkdownV2(text string) string {
	for _, char := range specialChars {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}
