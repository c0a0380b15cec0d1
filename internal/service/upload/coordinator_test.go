package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/harborsupport/console/internal/model/chat"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool // file name -> should fail
}

func (f *fakeUploader) Upload(_ context.Context, name, mimeType string, data []byte) (chat.Attachment, error) {
	f.mu.Lock()
	f.calls++
	shouldFail := f.fail[name]
	f.mu.Unlock()

	if shouldFail {
		return chat.Attachment{}, errors.New("boom")
	}
	return chat.Attachment{
		URL:       "https://files.example.com/" + name,
		Name:      name,
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
	}, nil
}

func TestCommitReturnsDescriptorsInStagedOrder(t *testing.T) {
	up := &fakeUploader{}
	c := NewCoordinator(up, 4)

	for i := 0; i < 5; i++ {
		c.Stage("conv-1", fmt.Sprintf("file-%d.txt", i), "text/plain", []byte("x"))
	}

	atts, err := c.Commit(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(atts) != 5 {
		t.Fatalf("expected 5 descriptors, got %d", len(atts))
	}
	for i, att := range atts {
		want := fmt.Sprintf("file-%d.txt", i)
		if att.Name != want {
			t.Fatalf("descriptor %d out of order: got %s want %s", i, att.Name, want)
		}
	}

	// The staging area is released on success.
	if got := c.Staged("conv-1"); len(got) != 0 {
		t.Fatalf("staging area must be released, still holds %d", len(got))
	}
}

func TestCommitAllOrNothing(t *testing.T) {
	up := &fakeUploader{fail: map[string]bool{"bad.bin": true}}
	c := NewCoordinator(up, 2)
	c.Stage("conv-1", "good.txt", "text/plain", []byte("ok"))
	c.Stage("conv-1", "bad.bin", "application/octet-stream", []byte{0x00})

	if _, err := c.Commit(context.Background(), "conv-1"); err == nil {
		t.Fatal("commit must fail when any upload fails")
	}

	// Nothing was released; staged files survive for a retry.
	if got := c.Staged("conv-1"); len(got) != 2 {
		t.Fatalf("staged files must survive a failed commit, got %d", len(got))
	}
}

func TestCommitRetryOnlyUploadsMissing(t *testing.T) {
	up := &fakeUploader{fail: map[string]bool{"bad.bin": true}}
	c := NewCoordinator(up, 2)
	c.Stage("conv-1", "good.txt", "text/plain", []byte("ok"))
	c.Stage("conv-1", "bad.bin", "application/octet-stream", []byte{0x00})

	if _, err := c.Commit(context.Background(), "conv-1"); err == nil {
		t.Fatal("first commit must fail")
	}
	callsAfterFirst := up.calls

	up.mu.Lock()
	up.fail = nil
	up.mu.Unlock()

	atts, err := c.Commit(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("expected both descriptors after retry, got %d", len(atts))
	}
	if up.calls-callsAfterFirst != 1 {
		t.Fatalf("retry must only upload the missing file, did %d uploads", up.calls-callsAfterFirst)
	}
}

type gatedUploader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedUploader) Upload(_ context.Context, name, mimeType string, data []byte) (chat.Attachment, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return chat.Attachment{URL: "https://files.example.com/" + name, Name: name}, nil
}

func TestCommitKeepsFilesStagedDuringCommit(t *testing.T) {
	up := &gatedUploader{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCoordinator(up, 2)
	c.Stage("conv-1", "early.txt", "text/plain", []byte("a"))

	done := make(chan struct{})
	var atts []chat.Attachment
	var commitErr error
	go func() {
		atts, commitErr = c.Commit(context.Background(), "conv-1")
		close(done)
	}()

	<-up.started
	late := c.Stage("conv-1", "late.txt", "text/plain", []byte("b"))
	close(up.release)
	<-done

	if commitErr != nil {
		t.Fatalf("commit: %v", commitErr)
	}
	if len(atts) != 1 || atts[0].Name != "early.txt" {
		t.Fatalf("commit must cover only its snapshot: %+v", atts)
	}

	got := c.Staged("conv-1")
	if len(got) != 1 || got[0].ID != late.ID {
		t.Fatalf("file staged during commit must survive it: %+v", got)
	}
}

func TestCommitWithNothingStaged(t *testing.T) {
	c := NewCoordinator(&fakeUploader{}, 2)
	if _, err := c.Commit(context.Background(), "conv-1"); !errors.Is(err, ErrNothingStaged) {
		t.Fatalf("expected ErrNothingStaged, got %v", err)
	}
}

func TestStageSniffsMimeType(t *testing.T) {
	c := NewCoordinator(&fakeUploader{}, 2)
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

	f := c.Stage("conv-1", "pic", "", png)
	if f.MimeType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %s", f.MimeType)
	}
	if f.PreviewPath == "" {
		t.Fatal("staged file must carry a preview path")
	}
}

func TestDiscardRemovesStagedFile(t *testing.T) {
	c := NewCoordinator(&fakeUploader{}, 2)
	f := c.Stage("conv-1", "a.txt", "text/plain", []byte("a"))
	c.Stage("conv-1", "b.txt", "text/plain", []byte("b"))

	if !c.Discard("conv-1", f.ID) {
		t.Fatal("discard must find the staged file")
	}
	got := c.Staged("conv-1")
	if len(got) != 1 || got[0].Name != "b.txt" {
		t.Fatalf("unexpected staging area after discard: %+v", got)
	}

	if _, _, ok := c.Preview(f.ID); ok {
		t.Fatal("discarded file must not be previewable")
	}
}
