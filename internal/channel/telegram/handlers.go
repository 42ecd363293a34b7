package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
	"github.com/IamSmokeY/SnapBooks/internal/session"
)

const (
	callbackSales    = "confirm_sales"
	callbackPurchase = "confirm_purchase"
	callbackChallan  = "confirm_challan"
	callbackCancel   = "cancel"
)

var callbackKinds = map[string]document.Kind{
	callbackSales:    document.SalesInvoice,
	callbackPurchase: document.PurchaseOrder,
	callbackChallan:  document.DeliveryChallan,
}

const welcomeText = `👋 <b>Welcome to SnapBooks!</b>

I convert photos of handwritten bills into GST invoices in seconds.

<b>How to use:</b>
📸 Send me a photo of your kata parchi, weighbridge slip or bill
⚡ I'll read it and generate:
  • Invoice PDF
  • Tally XML (ready to import)

<b>Commands:</b>
/help - Show detailed instructions

Send me a photo of your first bill! 📄`

const helpText = `📚 <b>SnapBooks Help</b>

<b>Taking the photo:</b>
1. Hold your phone steady over the bill
2. Ensure good lighting (no shadows)
3. Capture the full page
4. Avoid blurry or angled shots

<b>What I can read:</b>
✅ Hindi and English text
✅ Handwritten numbers and printed forms
✅ Weighbridge slips, katas, invoices
✅ Several documents in one photo
✅ Common units (pcs, kg, dz, ctn, MT)

<b>Example:</b> photograph a kata saying "Ravi ko 100 kursi @ 500" and send it to me.`

const photoPrompt = "📸 Please send me a <b>photo</b> of your bill.\n\nIf you need help, type /help"

func sessionKey(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.reply(msg.Chat.ID, welcomeText)
	case "help":
		return b.reply(msg.Chat.ID, helpText)
	default:
		return b.reply(msg.Chat.ID, "❓ Unknown command. Type /help to see available commands.")
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	// the last size is the largest
	photo := msg.Photo[len(msg.Photo)-1]
	return b.extract(ctx, msg, photo.FileID, "image/jpeg")
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	doc := msg.Document
	contentType := strings.ToLower(doc.MimeType)
	if contentType == "" && strings.HasSuffix(strings.ToLower(doc.FileName), ".pdf") {
		contentType = "application/pdf"
	}
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		return b.reply(msg.Chat.ID, photoPrompt)
	}
	return b.extract(ctx, msg, doc.FileID, contentType)
}

// extract reads the photo and asks the user which document to generate from it
func (b *Bot) extract(ctx context.Context, msg *tgbotapi.Message, fileID, contentType string) error {
	chatID := msg.Chat.ID
	progress, err := b.send(tgbotapi.NewMessage(chatID, "📸 Photo received! Processing..."))
	if err != nil {
		return fmt.Errorf("sending progress message: %w", err)
	}

	image, err := b.download(ctx, fileID)
	if err != nil {
		slog.Error("Error downloading photo", "chat_id", chatID, "error", err)
		b.clearProgress(chatID, progress.MessageID)
		return b.reply(chatID, "😕 <b>Couldn't download this photo.</b>\n\nPlease send it again.")
	}

	if _, err := b.send(tgbotapi.NewEditMessageText(chatID, progress.MessageID, "🤖 Reading document...")); err != nil {
		slog.Warn("Error updating progress message", "chat_id", chatID, "error", err)
	}

	extraction, err := b.processor.Extract(ctx, image, contentType, pipeline.Options{Source: "telegram"})
	b.clearProgress(chatID, progress.MessageID)
	if err != nil {
		slog.Error("Error extracting photo", "chat_id", chatID, "error", err)
		return b.reply(chatID, "😕 <b>Couldn't process this image.</b>\n\n"+escape(apperr.UserMessage(err)))
	}

	b.sessions.Put(sessionKey(msg.From), &session.Photo{
		Image:       image,
		ContentType: contentType,
		Extraction:  extraction,
	})

	m := tgbotapi.NewMessage(chatID, formatPreview(extraction))
	m.ParseMode = tgbotapi.ModeHTML
	m.ReplyMarkup = confirmKeyboard()
	_, err = b.send(m)
	return err
}

func (b *Bot) clearProgress(chatID int64, messageID int) {
	if err := b.request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		slog.Warn("Error deleting progress message", "chat_id", chatID, "error", err)
	}
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 Sales Invoice", callbackSales),
			tgbotapi.NewInlineKeyboardButtonData("📦 Purchase Order", callbackPurchase),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚚 Delivery Challan", callbackChallan),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", callbackCancel),
		),
	)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolving file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, pipeline.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.Message == nil || q.Message.Chat == nil {
		return b.answer(q.ID, "")
	}
	chatID := q.Message.Chat.ID
	key := sessionKey(q.From)

	if _, ok := b.sessions.Get(key); !ok {
		b.answer(q.ID, "Session expired. Please send a new photo.")
		return b.reply(chatID, "⏱️ Session expired. Please send a new photo to start over.")
	}

	if q.Data == callbackCancel {
		b.sessions.Delete(key)
		b.answer(q.ID, "Cancelled")
		return b.reply(chatID, "❌ Cancelled. Send a new photo when ready.")
	}

	kind, ok := callbackKinds[q.Data]
	if !ok {
		return b.answer(q.ID, "Unknown action")
	}

	pending, ok := b.sessions.Take(key)
	if !ok {
		// another tap on the same preview already took it
		return b.answer(q.ID, "Already processing")
	}

	b.answer(q.ID, "Creating "+kind.Title()+"...")
	if err := b.reply(chatID, "⚡ Generating "+kind.Title()+"..."); err != nil {
		slog.Warn("Error sending progress message", "chat_id", chatID, "error", err)
	}

	req := pipeline.Request{
		Kind:    kind,
		Options: pipeline.Options{Source: "telegram"},
	}
	if pending.Extraction != nil && pending.Extraction.Primary != nil {
		req.PreExtracted = pending.Extraction.Primary
	} else {
		req.Image, req.ContentType = pending.Image, pending.ContentType
	}

	result := b.processor.Run(ctx, req)
	return b.sendResult(chatID, result)
}

func (b *Bot) answer(callbackID, text string) error {
	err := b.request(tgbotapi.NewCallback(callbackID, text))
	if err != nil {
		slog.Warn("Error answering callback", "error", err)
	}
	return err
}

// sendResult sends the summary followed by the PDF and XML files
func (b *Bot) sendResult(chatID int64, result *pipeline.Result) error {
	if !result.Success {
		return b.reply(chatID, "❌ <b>Processing Failed</b>\n\n"+escape(apperr.UserMessage(result.Err)))
	}

	if err := b.reply(chatID, formatSummary(result)); err != nil {
		return fmt.Errorf("sending summary: %w", err)
	}

	name := result.Invoice.InvoiceNumber
	if name == "" {
		name = "invoice"
	}

	pdf := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name + ".pdf", Bytes: result.PDF})
	pdf.Caption = "📄 " + result.Invoice.Kind.Title() + " PDF"
	xml := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name + ".xml", Bytes: result.XML})
	xml.Caption = "📊 Tally XML (Import Ready)"

	var errs []error
	for _, doc := range []tgbotapi.DocumentConfig{pdf, xml} {
		if _, err := b.send(doc); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sending documents: %w", err)
	}
	return nil
}
