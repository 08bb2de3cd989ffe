package connectors

import (
	"context"
	"log/slog"
)

type FetchService struct {
	source RunSource
	store  *RunStore
	logger *slog.Logger
}

type FetchResult struct {
	Fetched     int
	Attachments int
	Stored      int
	Skipped     int
	// Paths lists newly stored run files in fetch order.
	Paths []string
}

func NewFetchService(inboxDir string, source RunSource, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchService{
		source: source,
		store:  NewRunStore(inboxDir),
		logger: logger.With("component", "intake"),
	}
}

// FetchAndStore pulls up to max messages from label and stores their run
// attachments. A message that cannot be parsed is logged and skipped.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.source.Fetch(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages), Paths: []string{}}
	for _, msg := range messages {
		atts, err := ExtractAttachments(msg)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping message", "message_id", msg.MessageID, "error", err)
			continue
		}
		for _, att := range atts {
			res.Attachments++
			path, stored, err := s.store.Store(att)
			if err != nil {
				return res, err
			}
			if !stored {
				res.Skipped++
				continue
			}
			res.Stored++
			res.Paths = append(res.Paths, path)
			s.logger.InfoContext(ctx, "run stored", "message_id", msg.MessageID, "subject", msg.Subject, "path", path)
		}
	}
	return res, nil
}
