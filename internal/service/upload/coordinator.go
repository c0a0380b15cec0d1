// Package upload stages local files for a conversation and turns them into
// remote attachment descriptors when the send is committed.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/harborsupport/console/internal/model/chat"
)

// ErrNothingStaged is returned by Commit when the conversation has no staged
// files.
var ErrNothingStaged = errors.New("no staged files for conversation")

// Uploader is the object-storage collaborator. The coordinator depends on
// nothing but this result contract.
type Uploader interface {
	Upload(ctx context.Context, name, mimeType string, data []byte) (chat.Attachment, error)
}

// StagedFile is a local file waiting for commit, with a locally browsable
// preview path served by the console API.
type StagedFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
	PreviewPath string `json:"previewPath"`

	data   []byte
	remote *chat.Attachment
}

// Coordinator owns the staging area and the commit pipeline. Uploads within
// one commit run concurrently but a commit is all-or-nothing: either every
// staged file ends up with a remote descriptor or the commit fails and no
// partial set is handed to the sender.
type Coordinator struct {
	mu          sync.Mutex
	uploader    Uploader
	concurrency int
	staged      map[string][]*StagedFile // conversation id -> selection order
}

// NewCoordinator wires the coordinator to an uploader. concurrency bounds
// how many uploads of one commit run at once.
func NewCoordinator(uploader Uploader, concurrency int) *Coordinator {
	if concurrency < 1 {
		concurrency = 3
	}
	return &Coordinator{
		uploader:    uploader,
		concurrency: concurrency,
		staged:      make(map[string][]*StagedFile),
	}
}

// Stage records a file in selection order without uploading it. When the
// caller did not supply a mime type it is sniffed from the content.
func (c *Coordinator) Stage(conversationID, name, mimeType string, data []byte) StagedFile {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	f := &StagedFile{
		ID:        uuid.NewString(),
		Name:      name,
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		data:      append([]byte(nil), data...),
	}
	f.PreviewPath = "/api/attachments/staged/" + f.ID

	c.mu.Lock()
	c.staged[conversationID] = append(c.staged[conversationID], f)
	c.mu.Unlock()
	return *f
}

// Staged lists the files currently staged for a conversation, in selection
// order.
func (c *Coordinator) Staged(conversationID string) []StagedFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := c.staged[conversationID]
	out := make([]StagedFile, len(files))
	for i, f := range files {
		out[i] = *f
	}
	return out
}

// Preview returns the raw content of a staged file for local browsing.
func (c *Coordinator) Preview(stagedID string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, files := range c.staged {
		for _, f := range files {
			if f.ID == stagedID {
				return f.data, f.MimeType, true
			}
		}
	}
	return nil, "", false
}

// Discard removes one staged file before commit.
func (c *Coordinator) Discard(conversationID, stagedID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := c.staged[conversationID]
	for i, f := range files {
		if f.ID == stagedID {
			c.staged[conversationID] = append(files[:i], files[i+1:]...)
			return true
		}
	}
	return false
}

// DiscardAll drops every staged file for a conversation. Used when the
// conversation itself goes away.
func (c *Coordinator) DiscardAll(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.staged, conversationID)
}

// Commit uploads every not-yet-uploaded staged file for the conversation.
// On success it returns the remote descriptors in the original staged order
// and releases the staging area, previews included. On any failure the whole
// commit fails, already-uploaded descriptors are remembered so a retry only
// uploads what is missing, and nothing is returned to the sender.
func (c *Coordinator) Commit(ctx context.Context, conversationID string) ([]chat.Attachment, error) {
	c.mu.Lock()
	files := append([]*StagedFile(nil), c.staged[conversationID]...)
	todo := make([]*StagedFile, 0, len(files))
	for _, f := range files {
		if f.remote == nil {
			todo = append(todo, f)
		}
	}
	c.mu.Unlock()

	if len(files) == 0 {
		return nil, ErrNothingStaged
	}

	sem := make(chan struct{}, c.concurrency)
	errCh := make(chan error, len(files))
	var wg sync.WaitGroup

	for _, f := range todo {
		wg.Add(1)
		go func(f *StagedFile) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			att, err := c.uploader.Upload(ctx, f.Name, f.MimeType, f.data)
			if err != nil {
				errCh <- fmt.Errorf("upload %s: %w", f.Name, err)
				return
			}
			c.mu.Lock()
			f.remote = &att
			c.mu.Unlock()
		}(f)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}

	out := make([]chat.Attachment, len(files))
	committed := make(map[*StagedFile]struct{}, len(files))
	for i, f := range files {
		out[i] = *f.remote
		committed[f] = struct{}{}
	}

	// Release only the snapshotted files; anything staged while the commit
	// ran stays for the next one.
	c.mu.Lock()
	var kept []*StagedFile
	for _, f := range c.staged[conversationID] {
		if _, ok := committed[f]; !ok {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		delete(c.staged, conversationID)
	} else {
		c.staged[conversationID] = kept
	}
	c.mu.Unlock()
	return out, nil
}
