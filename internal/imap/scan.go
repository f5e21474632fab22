package imap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	imapclient "github.com/emersion/go-imap/client"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/models"
)

// DefaultBatchSize is how many UIDs one FETCH round-trip covers.
const DefaultBatchSize = 500

// ErrScanCancelled is returned by Scanner.Run when the context is cancelled
// between batches or folders. Everything persisted up to the last completed
// batch stays in the cache.
var ErrScanCancelled = errors.New("scan cancelled")

// Scanner reconciles the local cache with the server, folder by folder.
// The client must already be logged in. All IMAP calls for one run are
// issued sequentially over this single connection.
type Scanner struct {
	Client           *imapclient.Client
	Pool             *pgxpool.Pool
	BatchSize        int
	UseGmailThreadID bool

	// Events receives progress notifications. May be nil.
	Events func(models.ScanEvent)
}

func (s *Scanner) emit(event models.ScanEvent) {
	if s.Events != nil {
		s.Events(event)
	}
}

func (s *Scanner) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// Run scans the given folders in order. A folder that cannot be selected or
// fetched is reported and skipped; cache write failures abort the run. Exactly
// one terminal event is emitted: all_done, cancelled, or error.
func (s *Scanner) Run(ctx context.Context, folders []*models.Folder) error {
	for _, folder := range folders {
		if ctx.Err() != nil {
			s.emit(models.ScanEvent{Type: models.ScanEventCancelled})
			return ErrScanCancelled
		}

		s.emit(models.ScanEvent{Type: models.ScanEventFolderStarted, Folder: folder.Name})

		status, err := SelectFolder(s.Client, folder.Name, true)
		if err != nil {
			log.Printf("Warning: Cannot select folder %s: %v", folder.Name, err)
			s.emit(models.ScanEvent{
				Type:   models.ScanEventError,
				Folder: folder.Name,
				Error:  fmt.Sprintf("cannot select %s: %v", folder.Name, err),
			})
			continue
		}
		serverValidity := int64(status.UidValidity)

		cacheValid := folder.UIDValidity != 0 && folder.UIDValidity == serverValidity

		var targetUIDs []uint32
		if !cacheValid {
			if folder.UIDValidity != 0 {
				log.Printf("UIDVALIDITY changed for %s (%d -> %d), full rescan", folder.Name, folder.UIDValidity, serverValidity)
			} else {
				log.Printf("No cache for %s, full scan", folder.Name)
			}

			if err := db.InvalidateFolder(ctx, s.Pool, folder.ID); err != nil {
				return s.fail(folder.Name, fmt.Errorf("failed to invalidate folder %s: %w", folder.Name, err))
			}

			targetUIDs, err = SearchUndeleted(s.Client)
			if err != nil {
				log.Printf("Warning: UID search failed for %s: %v", folder.Name, err)
				s.emit(models.ScanEvent{
					Type:   models.ScanEventError,
					Folder: folder.Name,
					Error:  fmt.Sprintf("search failed for %s: %v", folder.Name, err),
				})
				continue
			}
		} else {
			serverUIDs, err := SearchUndeleted(s.Client)
			if err != nil {
				log.Printf("Warning: UID search failed for %s: %v", folder.Name, err)
				s.emit(models.ScanEvent{
					Type:   models.ScanEventError,
					Folder: folder.Name,
					Error:  fmt.Sprintf("search failed for %s: %v", folder.Name, err),
				})
				continue
			}

			cachedUIDs, err := db.GetCachedUIDs(ctx, s.Pool, folder.ID)
			if err != nil {
				return s.fail(folder.Name, fmt.Errorf("failed to get cached UIDs for %s: %w", folder.Name, err))
			}

			newUIDs, deletedUIDs := DiffUIDs(serverUIDs, cachedUIDs)
			if len(deletedUIDs) > 0 {
				if err := db.DeleteMessagesByUID(ctx, s.Pool, folder.ID, deletedUIDs); err != nil {
					return s.fail(folder.Name, fmt.Errorf("failed to delete stale UIDs for %s: %w", folder.Name, err))
				}
				log.Printf("%s: removed %d deleted UIDs from cache", folder.Name, len(deletedUIDs))
			}

			if len(newUIDs) == 0 {
				log.Printf("%s: cache up to date, skipping fetch", folder.Name)
				if err := s.finishFolder(ctx, folder, serverValidity); err != nil {
					return s.fail(folder.Name, err)
				}
				continue
			}

			log.Printf("%s: incremental, fetching %d new UIDs", folder.Name, len(newUIDs))
			targetUIDs = newUIDs
		}

		if err := s.scanFolder(ctx, folder, targetUIDs); err != nil {
			if errors.Is(err, ErrScanCancelled) {
				s.emit(models.ScanEvent{Type: models.ScanEventCancelled, Folder: folder.Name})
				return ErrScanCancelled
			}
			log.Printf("Warning: Scan error for %s: %v", folder.Name, err)
			s.emit(models.ScanEvent{
				Type:   models.ScanEventError,
				Folder: folder.Name,
				Error:  fmt.Sprintf("error scanning %s: %v", folder.Name, err),
			})
			continue
		}

		if err := s.finishFolder(ctx, folder, serverValidity); err != nil {
			return s.fail(folder.Name, err)
		}
	}

	s.emit(models.ScanEvent{Type: models.ScanEventAllDone})
	return nil
}

// scanFolder fetches the target UIDs in batches, upserting each batch before
// fetching the next so a crash loses at most one batch of work.
func (s *Scanner) scanFolder(ctx context.Context, folder *models.Folder, uids []uint32) error {
	total := len(uids)
	batchSize := s.batchSize()

	for start := 0; start < total; start += batchSize {
		if ctx.Err() != nil {
			return ErrScanCancelled
		}

		end := start + batchSize
		if end > total {
			end = total
		}

		fetched, err := FetchMetadata(s.Client, uids[start:end], s.UseGmailThreadID)
		if err != nil {
			return fmt.Errorf("failed to fetch batch: %w", err)
		}

		messages := make([]*models.Message, 0, len(fetched))
		for _, imapMsg := range fetched {
			msg, err := ParseMessage(imapMsg, folder.ID)
			if err != nil {
				log.Printf("Warning: Failed to parse message in %s: %v", folder.Name, err)
				continue
			}
			messages = append(messages, msg)
		}

		if err := db.BatchUpsertMessages(ctx, s.Pool, messages); err != nil {
			return fmt.Errorf("failed to persist batch: %w", err)
		}

		s.emit(models.ScanEvent{
			Type:   models.ScanEventBatchDone,
			Folder: folder.Name,
			Done:   end,
			Total:  total,
		})
	}

	return nil
}

// finishFolder records the server epoch and scan time, recomputes the
// folder's stats from the message table, and emits folder_done.
func (s *Scanner) finishFolder(ctx context.Context, folder *models.Folder, serverValidity int64) error {
	folder.UIDValidity = serverValidity
	now := time.Now().UTC()
	folder.LastScannedAt = &now

	if err := db.UpsertFolder(ctx, s.Pool, folder); err != nil {
		return fmt.Errorf("failed to update folder %s: %w", folder.Name, err)
	}
	if err := db.UpdateFolderStats(ctx, s.Pool, folder.ID); err != nil {
		return fmt.Errorf("failed to update stats for %s: %w", folder.Name, err)
	}

	updated, err := db.GetFolderByID(ctx, s.Pool, folder.ID)
	if err != nil {
		return fmt.Errorf("failed to reload folder %s: %w", folder.Name, err)
	}

	s.emit(models.ScanEvent{Type: models.ScanEventFolderDone, Folder: folder.Name, Stats: updated})
	return nil
}

// fail emits a terminal error event and returns err unchanged.
func (s *Scanner) fail(folderName string, err error) error {
	s.emit(models.ScanEvent{Type: models.ScanEventError, Folder: folderName, Error: err.Error()})
	return err
}
