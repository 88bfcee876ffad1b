package telegram

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/gotd/td/telegram/query/messages"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"teledrive/pkg/models"
	"teledrive/pkg/streaming"
)

// Enumerate walks the chat history newest first and calls fn for each
// video document
func (s *Source) Enumerate(ctx context.Context, chat string, fn func(models.TransferItem) error) error {
	chat = normalizeChat(chat)
	inputPeer, err := s.resolve(ctx, chat)
	if err != nil {
		return err
	}

	var seen, videos int
	err = messages.NewQueryBuilder(s.raw).
		GetHistory(inputPeer).
		BatchSize(s.cfg.BatchSize).
		ForEach(ctx, func(ctx context.Context, elem messages.Elem) error {
			seen++
			doc, ok := elem.Document()
			if !ok || !isVideo(doc) {
				return nil
			}
			if doc.Size <= 0 {
				s.log.Warn("Skipping video without a size", "chat", chat, "message_id", elem.Msg.GetID())
				return nil
			}
			videos++
			return fn(itemFromDocument(chat, elem.Msg.GetID(), captionOf(elem.Msg), doc))
		})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to read history of %s: %w", chat, mapError(err))
	}

	s.log.Debug("Chat history scanned", "chat", chat, "messages", seen, "videos", videos)
	return nil
}

// Open starts downloading item in the background and returns the read end
// of the pipe. An expired file reference is refreshed once; if bytes were
// already written the stream fails and the next Open uses the fresh one.
func (s *Source) Open(ctx context.Context, item models.TransferItem, onProgress streaming.ProgressFunc) (streaming.Stream, error) {
	doc, err := s.document(ctx, item)
	if err != nil {
		return nil, err
	}

	dlCtx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	counter := &countingWriter{w: pw}

	go func() {
		err := s.download(dlCtx, doc, counter)
		if err != nil && tgerr.Is(err, "FILE_REFERENCE_EXPIRED") {
			fresh, rerr := s.refetch(dlCtx, item)
			switch {
			case rerr != nil:
				err = rerr
			case counter.n.Load() == 0:
				s.log.Debug("File reference refreshed", "item", item.DisplayName)
				err = s.download(dlCtx, fresh, counter)
			}
		}
		if err != nil {
			pw.CloseWithError(mapError(err))
			return
		}
		pw.Close()
	}()

	return streaming.NewStream(&pipeStream{PipeReader: pr, cancel: cancel}, doc.Size, s.cfg.ChunkSize, onProgress), nil
}

func (s *Source) download(ctx context.Context, doc *tg.Document, w io.Writer) error {
	_, err := s.downloader.Download(s.raw, doc.AsInputDocumentFileLocation()).Stream(ctx, w)
	return err
}

// document returns the freshest known document for item
func (s *Source) document(ctx context.Context, item models.TransferItem) (*tg.Document, error) {
	s.mu.Lock()
	fresh, ok := s.refs[item.Identity]
	s.mu.Unlock()
	if ok {
		return fresh, nil
	}
	if doc, ok := item.MediaRef.(*tg.Document); ok {
		return doc, nil
	}
	return s.refetch(ctx, item)
}

// refetch reloads the message behind item to obtain a current file reference
func (s *Source) refetch(ctx context.Context, item models.TransferItem) (*tg.Document, error) {
	inputPeer, err := s.resolve(ctx, item.Chat)
	if err != nil {
		return nil, err
	}

	iter := messages.NewQueryBuilder(s.raw).
		GetHistory(inputPeer).
		OffsetID(item.MessageID + 1).
		BatchSize(1).
		Iter()
	if !iter.Next(ctx) {
		if err := iter.Err(); err != nil {
			return nil, mapError(err)
		}
		return nil, fmt.Errorf("%w: message %d", models.ErrItemGone, item.MessageID)
	}

	elem := iter.Value()
	if elem.Msg.GetID() != item.MessageID {
		return nil, fmt.Errorf("%w: message %d", models.ErrItemGone, item.MessageID)
	}
	doc, ok := elem.Document()
	if !ok || !isVideo(doc) {
		return nil, fmt.Errorf("%w: message %d no longer holds a video", models.ErrItemGone, item.MessageID)
	}

	s.mu.Lock()
	s.refs[item.Identity] = doc
	s.mu.Unlock()
	return doc, nil
}

func (s *Source) resolve(ctx context.Context, chat string) (tg.InputPeerClass, error) {
	s.mu.Lock()
	cached, ok := s.peers[chat]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	var (
		inputPeer tg.InputPeerClass
		err       error
	)
	if chat == "me" || chat == "self" {
		inputPeer = &tg.InputPeerSelf{}
	} else {
		inputPeer, err = s.resolver.ResolveDomain(ctx, chat)
	}
	if err != nil {
		if tgerr.Is(err, "USERNAME_INVALID", "USERNAME_NOT_OCCUPIED", "CHANNEL_PRIVATE", "CHANNEL_INVALID") {
			return nil, models.Configuration(fmt.Sprintf("cannot resolve telegram chat %q", chat), err)
		}
		return nil, fmt.Errorf("failed to resolve chat %s: %w", chat, mapError(err))
	}

	s.mu.Lock()
	s.peers[chat] = inputPeer
	s.mu.Unlock()
	return inputPeer, nil
}

func itemFromDocument(chat string, msgID int, caption string, doc *tg.Document) models.TransferItem {
	return models.TransferItem{
		Identity:    Identity(chat, msgID),
		DisplayName: DisplayName(msgID, doc, caption),
		SizeBytes:   doc.Size,
		MimeType:    doc.MimeType,
		MessageID:   msgID,
		Chat:        chat,
		MediaRef:    doc,
	}
}

// Identity is the tracker key for a message in chat
func Identity(chat string, msgID int) string {
	return fmt.Sprintf("tg:%s:%d", normalizeChat(chat), msgID)
}

func normalizeChat(chat string) string {
	chat = strings.TrimSpace(chat)
	chat = strings.TrimPrefix(chat, "https://t.me/")
	return strings.TrimPrefix(chat, "@")
}

func isVideo(doc *tg.Document) bool {
	for _, attr := range doc.Attributes {
		if _, ok := attr.(*tg.DocumentAttributeVideo); ok {
			return true
		}
	}
	return false
}

func captionOf(msg tg.NotEmptyMessage) string {
	if m, ok := msg.(*tg.Message); ok {
		return m.Message
	}
	return ""
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

// pipeStream stops the download goroutine when the reader is closed early
type pipeStream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (p *pipeStream) Close() error {
	p.cancel()
	return p.PipeReader.Close()
}
