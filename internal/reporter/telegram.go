package reporter

import (
	"fmt"
	"strings"
	"time"

	"go-townwork-crawler/internal/config"
	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramReporter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramReporter(cfg *config.Config) (*TelegramReporter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}

	//turn this on in case of debug
	//bot.Debug = true

	return &TelegramReporter{
		bot:    bot,
		chatID: cfg.TelegramChatID,
	}, nil
}

func (t *TelegramReporter) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "HTML" //use HTML for bold/italic
	_, err := t.bot.Send(msg)
	return err
}

func (t *TelegramReporter) SendJob(job models.StoredJob) error {
	salary := job.Salary
	if salary == "" {
		salary = "非公開"
	}
	text := fmt.Sprintf(
		"🔥 <b>%s</b>\n"+
			"🏢 %s\n"+
			"💰 %s\n"+
			"📍 %s\n"+
			"🔗 <a href=\"%s\">求人を見る</a>",
		job.Title,
		job.Company,
		salary,
		job.Location,
		job.URL,
	)
	return t.SendMessage(text)
}

// SendDigest summarizes a finished crawl run in one message, followed by
// up to maxJobs newly discovered listings.
func (t *TelegramReporter) SendDigest(out *service.Outcome, jobs []models.StoredJob, maxJobs int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>クロール完了: %s</b>\n", out.Source)
	fmt.Fprintf(&b, "🔍 キーワード: %s\n", strings.Join(out.Keywords, ", "))
	fmt.Fprintf(&b, "🗾 エリア: %s\n", strings.Join(out.Areas, ", "))
	fmt.Fprintf(&b, "📦 取得 %d件 / 保存 %d件 / 新着 %d件\n", out.ScrapedCount, out.SavedCount, out.NewCount)
	fmt.Fprintf(&b, "⏱ 所要時間: %s", out.FinishedAt.Sub(out.StartedAt).Round(time.Second))

	if err := t.SendMessage(b.String()); err != nil {
		return err
	}

	sent := 0
	for _, job := range jobs {
		if !job.IsNew || job.IsFiltered {
			continue
		}
		if sent >= maxJobs {
			break
		}
		if err := t.SendJob(job); err != nil {
			return err
		}
		sent++
	}
	return nil
}

func (t *TelegramReporter) SendError(errReq error) error {
	text := fmt.Sprintf("⚠️ <b>クローラーエラー</b>:\n%v", errReq)
	return t.SendMessage(text)
}
