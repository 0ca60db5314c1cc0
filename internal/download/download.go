// Package download retrieves the files of filings with a fixed pool of
// workers. Every item runs to a terminal state on its own; one failed
// item never cancels another. Results are available in bulk, in
// submission order, or as a stream in completion order.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/util"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 5

// ErrFileNotAvailable is the failure of an item whose filing has no URL
// for the requested file kind.
var ErrFileNotAvailable = errors.New("file not available")

// CorruptDownloadError reports a file whose SHA-256 hash did not match
// the published one. The file is kept at Path with a .corrupt suffix.
type CorruptDownloadError struct {
	Path     string
	URL      string
	Expected string
	Actual   string
}

func (e *CorruptDownloadError) Error() string {
	return fmt.Sprintf("corrupt download %s: sha256 %s, expected %s (saved as %s)", e.URL, e.Actual, e.Expected, e.Path)
}

// Fetcher opens remote files. *xbrlapi.Client implements it.
type Fetcher interface {
	FetchFile(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// ─── States & events ──────────────────────────────────────────────────────────

// State is the lifecycle state of an item.
type State int

const (
	Pending State = iota
	InProgress
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// Event is a state transition of the item at Index.
type Event struct {
	Index int
	Item  Item
	State State
	Err   error
}

// Observer receives every state transition. It is called from worker
// goroutines and must be safe for concurrent use.
type Observer func(Event)

// Outcome is the terminal result of one item. Path is set on success and
// Err on failure.
type Outcome struct {
	Index int
	Item  Item
	Path  string
	Bytes int64 // size of the saved file; 0 on failure
	Err   error
}

// OK reports whether the item completed.
func (o Outcome) OK() bool { return o.Err == nil }

// Tally counts finished items and the bytes they saved.
type Tally struct {
	Completed int
	Failed    int
	Bytes     int64
}

// Count tallies outcomes.
func Count(outcomes []Outcome) Tally {
	var t Tally
	for _, o := range outcomes {
		if o.Err != nil {
			t.Failed++
			continue
		}
		t.Completed++
		t.Bytes += o.Bytes
	}
	return t
}

// Failures joins the errors of failed outcomes into one error, or nil
// when every item completed.
func Failures(outcomes []Outcome) error {
	var me util.MultiError
	for _, o := range outcomes {
		if o.Err != nil {
			me.Add(o.Err)
		}
	}
	return me.Err()
}

// ─── Downloader ───────────────────────────────────────────────────────────────

// Downloader runs download items on a fixed pool of workers.
type Downloader struct {
	fetcher     Fetcher
	concurrency int

	// Observer, when set, receives every state transition.
	Observer Observer

	mu       sync.Mutex
	reserved map[string]bool
}

// New creates a Downloader running at most concurrency transfers at a
// time.
func New(f Fetcher, concurrency int) (*Downloader, error) {
	if concurrency < 1 {
		return nil, &model.ConfigError{Field: "concurrency", Value: strconv.Itoa(concurrency), Reason: "must be at least 1"}
	}
	return &Downloader{
		fetcher:     f,
		concurrency: concurrency,
		reserved:    make(map[string]bool),
	}, nil
}

// Download runs every item and blocks until all have finished. Outcomes
// are returned in submission order.
func (d *Downloader) Download(ctx context.Context, items []Item) []Outcome {
	outcomes := make([]Outcome, len(items))
	s := d.Stream(ctx, items)
	for o := range s.Outcomes() {
		outcomes[o.Index] = o
	}
	return outcomes
}

// Stream is a running progressive download.
type Stream struct {
	out  chan Outcome
	stop chan struct{}
	once sync.Once
}

// Outcomes delivers one outcome per finished item in completion order.
// The channel is closed once every dispatched item has finished.
func (s *Stream) Outcomes() <-chan Outcome { return s.out }

// Close stops dispatching: items already in progress finish, no new ones
// start. Outcomes not yet received are discarded. Safe to call more than
// once.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Stream starts the items and returns at once. Items are dispatched in
// submission order to the worker pool; the caller must either drain
// Outcomes or call Close.
func (d *Downloader) Stream(ctx context.Context, items []Item) *Stream {
	s := &Stream{
		out:  make(chan Outcome, d.concurrency),
		stop: make(chan struct{}),
	}
	for i, it := range items {
		d.observe(Event{Index: i, Item: it, State: Pending})
	}

	jobs := make(chan int)
	var g errgroup.Group
	for w := 0; w < d.concurrency; w++ {
		g.Go(func() error {
			for i := range jobs {
				o := d.run(ctx, i, items[i])
				select {
				case s.out <- o:
				case <-s.stop:
				}
			}
			return nil
		})
	}

	go func() {
		defer func() {
			close(jobs)
			_ = g.Wait()
			close(s.out)
		}()
		for i := range items {
			select {
			case <-s.stop:
				return
			default:
			}
			select {
			case jobs <- i:
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (d *Downloader) observe(e Event) {
	if d.Observer != nil {
		d.Observer(e)
	}
}

// run takes one item to a terminal state.
func (d *Downloader) run(ctx context.Context, index int, it Item) Outcome {
	d.observe(Event{Index: index, Item: it, State: InProgress})
	slog.Debug("download started", "kind", it.Kind, "url", it.URL)

	p, n, err := d.transfer(ctx, it)
	o := Outcome{Index: index, Item: it, Path: p, Bytes: n, Err: err}
	if err != nil {
		slog.Warn("download failed", "kind", it.Kind, "url", it.URL, "err", err)
		d.observe(Event{Index: index, Item: it, State: Failed, Err: err})
		return o
	}
	if it.Filing != nil {
		it.Filing.SetDownloadPath(it.Kind, p)
	}
	slog.Debug("download completed", "kind", it.Kind, "path", p, "bytes", n)
	d.observe(Event{Index: index, Item: it, State: Completed})
	return o
}

// ─── Transfer ─────────────────────────────────────────────────────────────────

// transfer saves the file of it and returns its path and size. The data
// is written to <name>.unfinished and renamed into place once complete and
// verified.
func (d *Downloader) transfer(ctx context.Context, it Item) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if it.URL == "" {
		id := ""
		if it.Filing != nil {
			id = it.Filing.APIID
		}
		return "", 0, fmt.Errorf("%s of filing %s: %w", it.Kind, id, ErrFileNotAvailable)
	}
	if err := (Target{StemPattern: it.StemPattern}).Validate(); err != nil {
		return "", 0, err
	}

	dir := it.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating %s: %w", dir, err)
	}
	savePath, err := d.savePath(dir, it)
	if err != nil {
		return "", 0, err
	}

	body, err := d.fetcher.FetchFile(ctx, it.URL)
	if err != nil {
		return "", 0, fmt.Errorf("downloading %s: %w", it.URL, err)
	}
	defer body.Close()

	tmp := savePath + ".unfinished"
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("creating %s: %w", tmp, err)
	}
	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(f, h), body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", 0, fmt.Errorf("downloading %s: %w", it.URL, copyErr)
	}

	if it.SHA256 != "" {
		actual := hex.EncodeToString(h.Sum(nil))
		if !strings.EqualFold(actual, it.SHA256) {
			corrupt := savePath + ".corrupt"
			_ = os.Remove(corrupt)
			if err := os.Rename(tmp, corrupt); err != nil {
				return "", 0, fmt.Errorf("renaming %s: %w", tmp, err)
			}
			return "", 0, &CorruptDownloadError{
				Path:     corrupt,
				URL:      it.URL,
				Expected: strings.ToLower(it.SHA256),
				Actual:   actual,
			}
		}
	}

	if err := os.Remove(savePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", 0, fmt.Errorf("replacing %s: %w", savePath, err)
	}
	if err := os.Rename(tmp, savePath); err != nil {
		return "", 0, fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return savePath, n, nil
}

// savePath decides the local file path of it. A URL without a file name
// is saved as file0001, file0002, ... never reusing an existing name.
func (d *Downloader) savePath(dir string, it Item) (string, error) {
	name := it.Filename
	if name == "" {
		name = urlFileName(it.URL)
	}
	if name != "" {
		return filepath.Join(dir, applyStemPattern(name, it.StemPattern)), nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for n := 1; n < 10000; n++ {
		p := filepath.Join(dir, applyStemPattern(fmt.Sprintf("file%04d", n), it.StemPattern))
		if d.reserved[p] {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			continue
		}
		d.reserved[p] = true
		return p, nil
	}
	return "", fmt.Errorf("no free file name in %s", dir)
}

func urlFileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := u.Path[strings.LastIndex(u.Path, "/")+1:]
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return ""
	}
	return name
}

func applyStemPattern(name, pattern string) string {
	if pattern == "" {
		return name
	}
	ext := path.Ext(name)
	return strings.ReplaceAll(pattern, namePlaceholder, strings.TrimSuffix(name, ext)) + ext
}
