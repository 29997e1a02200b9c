package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

type sourceRepoFake struct {
	mu        sync.Mutex
	sources   map[string]domain.Source
	updates   []domain.StatusUpdate
	createErr error
	getErr    error
	updateErr error
	// failStatus makes UpdateStatus fail only for that target status.
	failStatus domain.IndexingStatus
}

func newSourceRepoFake(sources ...domain.Source) *sourceRepoFake {
	f := &sourceRepoFake{sources: make(map[string]domain.Source)}
	for _, s := range sources {
		f.sources[s.SourceID] = s
	}
	return f
}

func (f *sourceRepoFake) Create(_ context.Context, source *domain.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sources[source.SourceID] = *source
	return nil
}

func (f *sourceRepoFake) GetByID(_ context.Context, id string) (*domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sources[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSourceNotFound, "get source", fmt.Errorf("id %s", id))
	}
	return &s, nil
}

func (f *sourceRepoFake) List(_ context.Context, limit int) ([]domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Source, 0, len(f.sources))
	for _, s := range f.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *sourceRepoFake) UpdateStatus(_ context.Context, id string, update domain.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.failStatus != "" && update.Status == f.failStatus {
		return errors.New("status write refused")
	}
	s, ok := f.sources[id]
	if !ok {
		return domain.WrapError(domain.ErrSourceNotFound, "update status", fmt.Errorf("id %s", id))
	}
	s.Apply(update, s.UpdatedAt)
	f.sources[id] = s
	return nil
}

func (f *sourceRepoFake) get(id string) domain.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[id]
}

func (f *sourceRepoFake) statuses() []domain.IndexingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.IndexingStatus, len(f.updates))
	for i, u := range f.updates {
		out[i] = u.Status
	}
	return out
}

type chunkStoreFake struct {
	mu          sync.Mutex
	chunks      []domain.Chunk
	batches     []int
	failOnBatch int
	deleteErr   error
	findErr     error
	nearest     []domain.SearchResult
	findLimit   int
}

func (f *chunkStoreFake) WriteBatch(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, len(chunks))
	if f.failOnBatch > 0 && len(f.batches) == f.failOnBatch {
		return errors.New("write rejected")
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *chunkStoreFake) DeleteBySource(_ context.Context, sourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	kept := f.chunks[:0]
	removed := 0
	for _, c := range f.chunks {
		if c.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	f.chunks = kept
	return removed, nil
}

func (f *chunkStoreFake) DeleteBatch(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := min(limit, len(f.chunks))
	f.chunks = f.chunks[n:]
	return n, nil
}

func (f *chunkStoreFake) CountBySource(_ context.Context, sourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		if c.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}

func (f *chunkStoreFake) FindNearest(_ context.Context, _ []float32, limit int) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findLimit = limit
	if f.findErr != nil {
		return nil, f.findErr
	}
	out := append([]domain.SearchResult(nil), f.nearest...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *chunkStoreFake) textsFor(sourceID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.chunks {
		if c.SourceID == sourceID {
			out = append(out, c.Text)
		}
	}
	return out
}

type embedderFake struct {
	mu         sync.Mutex
	err        error
	queryErr   error
	queryVec   []float32
	calls      int
	lastQuery  string
	shortByOne bool
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.shortByOne {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = text
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryVec != nil {
		return f.queryVec, nil
	}
	return []float32{1, 0}, nil
}

type storageFake struct {
	mu       sync.Mutex
	objects  map[string][]byte
	saveErr  error
	fetchErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = raw
	f.mu.Unlock()
	return nil
}

func (f *storageFake) Fetch(_ context.Context, ref string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[strings.TrimPrefix(ref, "file://")]
	if !ok {
		return nil, fmt.Errorf("object %s not found", ref)
	}
	return bytes.Clone(raw), nil
}

func (f *storageFake) ResolveDownloadURL(_ context.Context, key string) (string, error) {
	return "file://" + key, nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishSourceUploaded(_ context.Context, sourceID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, sourceID)
	return nil
}

func (f *queueFake) SubscribeSourceUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

// extractorFake returns the stored bytes as text, or a fixed outcome.
type extractorFake struct {
	text  *string
	err   error
	modes []domain.ExtractionMode
}

func (f *extractorFake) Extract(_ context.Context, file domain.FileRef, mode domain.ExtractionMode) (string, error) {
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return "", f.err
	}
	if f.text != nil {
		return *f.text, nil
	}
	return string(file.Data), nil
}

// windowChunker cuts text into fixed rune windows without overlap.
type windowChunker struct {
	size int
	err  error
}

func (c windowChunker) Split(text string) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += c.size {
		out = append(out, string(runes[start:min(start+c.size, len(runes))]))
	}
	return out, nil
}

type settingsStoreFake struct {
	cfg     domain.RetrievalConfig
	found   bool
	loadErr error
	saveErr error
	loads   int
	saves   int
}

func (f *settingsStoreFake) Load(context.Context) (domain.RetrievalConfig, bool, error) {
	f.loads++
	if f.loadErr != nil {
		return domain.RetrievalConfig{}, false, f.loadErr
	}
	return f.cfg, f.found, nil
}

func (f *settingsStoreFake) Save(_ context.Context, cfg domain.RetrievalConfig) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.cfg = cfg
	f.found = true
	return nil
}

type fixedSettings domain.RetrievalConfig

func (s fixedSettings) Current(context.Context) domain.RetrievalConfig {
	return domain.RetrievalConfig(s)
}
