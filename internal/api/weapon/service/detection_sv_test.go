package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	weaponRepository "WeaponGuard/internal/api/weapon/repository"
	"WeaponGuard/internal/entity"
	contextPkg "WeaponGuard/pkg/context"
	"WeaponGuard/pkg/model"
	"WeaponGuard/pkg/redis"
	s3Pkg "WeaponGuard/pkg/s3"
	"WeaponGuard/pkg/utils"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu          sync.Mutex
	detections  []entity.RawDetection
	detectErr   error
	renderErr   error
	renderPanic bool
	detectCalls int
	rendered    []entity.RawDetection
	labels      []string
}

func (m *fakeModel) Detect(_ context.Context, _ image.Image) ([]entity.RawDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectCalls++
	return m.detections, m.detectErr
}

func (m *fakeModel) Render(img image.Image, detections []entity.RawDetection, labels []string) (image.Image, error) {
	if m.renderPanic {
		panic("draw failed")
	}
	m.rendered = detections
	m.labels = labels
	if m.renderErr != nil {
		return nil, m.renderErr
	}
	return img, nil
}

func (m *fakeModel) Close() error { return nil }

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

type fakeDetectionStore struct {
	records   []entity.DetectionRecord
	createErr error
	stats     entity.DetectionStats
	lastList  weaponRepository.ListFilter
}

func (f *fakeDetectionStore) CreateDetection(_ context.Context, record entity.DetectionRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeDetectionStore) GetDetectionByID(_ context.Context, id string) (entity.DetectionRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return entity.DetectionRecord{}, weapon.ErrDetectionNotFound
}

func (f *fakeDetectionStore) ListDetections(_ context.Context, filter weaponRepository.ListFilter) ([]entity.DetectionRecord, error) {
	f.lastList = filter
	return f.records, nil
}

func (f *fakeDetectionStore) GetStats(_ context.Context) (entity.DetectionStats, error) {
	return f.stats, nil
}

type fakeRepository struct {
	store     *fakeDetectionStore
	txClients int
	commits   int
	rollbacks int
}

func (f *fakeRepository) NewClient(tx bool) (weaponRepository.Client, error) {
	if tx {
		f.txClients++
	}
	return weaponRepository.Client{
		Detection: f.store,
		Commit:    func() error { f.commits++; return nil },
		Rollback:  func() error { f.rollbacks++; return nil },
	}, nil
}

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) GetReport(_ context.Context, hash string) ([]byte, error) {
	v, ok := c.entries[hash]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) SetReport(_ context.Context, hash string, report []byte) error {
	c.entries[hash] = report
	return nil
}

func (c *fakeCache) Close() error { return nil }

type fakeS3 struct {
	uploads   map[string][]byte
	deleted   []string
	deleteErr error
}

func (f *fakeS3) UploadImage(_ context.Context, key string, data []byte, _ string) (string, error) {
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return key, nil
}

func (f *fakeS3) PresignUrl(fileUrl string) (string, error) {
	return "https://weaponguard.s3.amazonaws.com/" + fileUrl + "?signed=1", nil
}

func (f *fakeS3) DeleteFile(fileName string) error {
	f.deleted = append(f.deleted, fileName)
	return f.deleteErr
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type serviceDeps struct {
	model *fakeModel
	store *fakeDetectionStore
	repo  *fakeRepository
	cache redis.IRedis
	s3    *fakeS3
}

func newTestService(deps serviceDeps) IWeaponService {
	handle := model.NewHandle(deps.model, weapon.WeaponClasses, model.TypeCustom)
	var repo weaponRepository.Repository
	switch {
	case deps.repo != nil:
		repo = deps.repo
	case deps.store != nil:
		repo = &fakeRepository{store: deps.store}
	}
	var s3Client s3Pkg.ItfS3
	if deps.s3 != nil {
		s3Client = deps.s3
	}
	return NewWeaponService(testLogger(), handle, weapon.DefaultClassMap(), utils.New(0, 0), repo, deps.cache, s3Client)
}

func uploadCtx() context.Context {
	return contextPkg.WithRequestID(context.Background(), "test-request")
}

func TestDetectRejectsEmptyUpload(t *testing.T) {
	m := &fakeModel{}
	svc := newTestService(serviceDeps{model: m})

	_, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "empty.jpg", Source: weapon.SourceUpload})
	assert.ErrorIs(t, err, weapon.ErrEmptyFile)
	assert.Equal(t, 0, m.calls())
}

func TestDetectRejectsUndecodableImage(t *testing.T) {
	m := &fakeModel{}
	svc := newTestService(serviceDeps{model: m})

	_, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "notes.txt", Data: []byte("hello"), Source: weapon.SourceUpload})
	assert.ErrorIs(t, err, weapon.ErrInvalidImage)
	assert.Equal(t, 0, m.calls())
}

func TestDetectModelNotLoaded(t *testing.T) {
	svc := NewWeaponService(testLogger(), model.FailedHandle(errors.New("weights missing")), weapon.DefaultClassMap(), utils.New(0, 0), nil, nil, nil)

	_, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "a.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
	assert.ErrorIs(t, err, weapon.ErrModelUnavailable)

	status := svc.ModelStatus()
	assert.False(t, status.Loaded)
	assert.Equal(t, "weights missing", status.Error)
}

func TestDetectReport(t *testing.T) {
	m := &fakeModel{detections: []entity.RawDetection{
		{X1: 2, Y1: 4, X2: 12, Y2: 24, Confidence: 0.5, ClassIndex: 3},
		{X1: 20, Y1: 20, X2: 30, Y2: 30, Confidence: 0.45, ClassIndex: 4},
		{X1: 0, Y1: 0, X2: 5, Y2: 5, Confidence: 0.2, ClassIndex: 0},
	}}
	svc := newTestService(serviceDeps{model: m})

	resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "gun.png", Data: pngBytes(t, 64, 48), Source: weapon.SourceUpload})
	require.NoError(t, err)

	assert.Equal(t, "gun.png", resp.Filename)
	assert.Equal(t, entity.ThreatLevelMedium, resp.ThreatLevel)
	require.Len(t, resp.Detections, 2)
	assert.Equal(t, "handgun", resp.Detections[0].Class)
	assert.Equal(t, entity.BBox{X: 2, Y: 4, Width: 10, Height: 20}, resp.Detections[0].BBox)
	assert.Equal(t, "knife", resp.Detections[1].Class)

	assert.Equal(t, model.TypeCustom, resp.ProcessingInfo.ModelType)
	assert.Equal(t, 2, resp.ProcessingInfo.TotalDetections)
	assert.Equal(t, [2]int{64, 48}, resp.ProcessingInfo.ImageSize)
	assert.False(t, resp.ProcessingInfo.Cached)
	assert.True(t, strings.HasPrefix(resp.AnnotatedImage, "data:image/jpeg;base64,"))
	assert.Empty(t, resp.DetectionID)

	assert.Len(t, m.rendered, 2)
	assert.Equal(t, []string{"handgun", "knife"}, m.labels)
}

func TestDetectRendersResolvedClassNames(t *testing.T) {
	// COCO index 76 is "scissors", which the default overrides report as a knife.
	m := &fakeModel{detections: []entity.RawDetection{
		{X1: 1, Y1: 1, X2: 6, Y2: 6, Confidence: 0.8, ClassIndex: 76},
	}}
	handle := model.NewHandle(m, model.YOLOClasses, model.TypeFallback)
	svc := NewWeaponService(testLogger(), handle, weapon.DefaultClassMap(), utils.New(0, 0), nil, nil, nil)

	resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "desk.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
	require.NoError(t, err)

	require.Len(t, resp.Detections, 1)
	assert.Equal(t, "knife", resp.Detections[0].Class)
	assert.Equal(t, []string{"knife"}, m.labels)
}

func TestDetectNoDetectionsIsLow(t *testing.T) {
	m := &fakeModel{detections: []entity.RawDetection{
		{X1: 0, Y1: 0, X2: 5, Y2: 5, Confidence: 0.29, ClassIndex: 3},
	}}
	svc := newTestService(serviceDeps{model: m})

	resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "cat.png", Data: pngBytes(t, 16, 16), Source: weapon.SourceUpload})
	require.NoError(t, err)

	assert.NotNil(t, resp.Detections)
	assert.Empty(t, resp.Detections)
	assert.Equal(t, entity.ThreatLevelLow, resp.ThreatLevel)
}

func TestDetectInferenceFailure(t *testing.T) {
	m := &fakeModel{detectErr: errors.New("session run failed")}
	svc := newTestService(serviceDeps{model: m})

	_, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "a.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
	require.Error(t, err)
	assert.ErrorIs(t, err, weapon.ErrProcessing)
	assert.Contains(t, err.Error(), "session run failed")
}

func TestDetectRenderFallback(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "render error", model: &fakeModel{renderErr: errors.New("no font")}},
		{name: "render panic", model: &fakeModel{renderPanic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.model.detections = []entity.RawDetection{{X1: 1, Y1: 1, X2: 4, Y2: 4, Confidence: 0.9, ClassIndex: 0}}
			svc := newTestService(serviceDeps{model: tt.model})

			resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "a.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resp.AnnotatedImage, "data:image/jpeg;base64,"))
			assert.Equal(t, entity.ThreatLevelCritical, resp.ThreatLevel)
		})
	}
}

func TestDetectPersistsUploads(t *testing.T) {
	m := &fakeModel{detections: []entity.RawDetection{{X1: 1, Y1: 1, X2: 6, Y2: 6, Confidence: 0.91, ClassIndex: 7}}}
	store := &fakeDetectionStore{}
	repo := &fakeRepository{store: store}
	bucket := &fakeS3{}
	svc := newTestService(serviceDeps{model: m, repo: repo, s3: bucket})

	resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "rifle.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
	require.NoError(t, err)
	require.NotEmpty(t, resp.DetectionID)

	require.Len(t, store.records, 1)
	record := store.records[0]
	assert.Equal(t, resp.DetectionID, record.ID)
	assert.Equal(t, "rifle.png", record.Filename)
	assert.Equal(t, entity.ThreatLevelCritical, record.ThreatLevel)
	assert.Equal(t, 0.91, record.Confidence)
	assert.Equal(t, 1, record.TotalDetections)
	assert.Equal(t, "annotated/"+record.ID+".jpg", record.ImagePath)
	assert.Contains(t, bucket.uploads, "annotated/"+record.ID+".jpg")
	assert.Empty(t, bucket.deleted)

	assert.Equal(t, 1, repo.txClients)
	assert.Equal(t, 1, repo.commits)
}

func TestDetectRemovesUploadWhenRecordFails(t *testing.T) {
	tests := []struct {
		name      string
		deleteErr error
	}{
		{name: "delete succeeds"},
		{name: "delete fails", deleteErr: errors.New("access denied")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModel{detections: []entity.RawDetection{{X1: 1, Y1: 1, X2: 6, Y2: 6, Confidence: 0.91, ClassIndex: 7}}}
			repo := &fakeRepository{store: &fakeDetectionStore{createErr: errors.New("connection refused")}}
			bucket := &fakeS3{deleteErr: tt.deleteErr}
			cache := newFakeCache()
			svc := newTestService(serviceDeps{model: m, repo: repo, s3: bucket, cache: cache})

			resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "rifle.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
			require.NoError(t, err)
			assert.Empty(t, resp.DetectionID)

			require.Len(t, bucket.uploads, 1)
			for key := range bucket.uploads {
				assert.Equal(t, []string{key}, bucket.deleted)
			}
			assert.Equal(t, 0, repo.commits)
			assert.Equal(t, 1, repo.rollbacks)

			// the cached report must not point at the removed object
			require.Len(t, cache.entries, 1)
			for _, raw := range cache.entries {
				assert.NotContains(t, string(raw), "image_path")
			}
		})
	}
}

func TestDetectKeepsUploadWithoutHistory(t *testing.T) {
	m := &fakeModel{}
	bucket := &fakeS3{}
	svc := newTestService(serviceDeps{model: m, s3: bucket})

	_, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "a.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
	require.NoError(t, err)
	assert.Len(t, bucket.uploads, 1)
	assert.Empty(t, bucket.deleted)
}

func TestDetectPersistenceFailureDoesNotFailRequest(t *testing.T) {
	m := &fakeModel{}
	store := &fakeDetectionStore{createErr: errors.New("connection refused")}
	svc := newTestService(serviceDeps{model: m, store: store})

	resp, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "a.png", Data: pngBytes(t, 8, 8), Source: weapon.SourceUpload})
	require.NoError(t, err)
	assert.Empty(t, resp.DetectionID)
}

func TestDetectStreamIsNotPersisted(t *testing.T) {
	m := &fakeModel{}
	store := &fakeDetectionStore{}
	cache := newFakeCache()
	svc := newTestService(serviceDeps{model: m, store: store, cache: cache})

	_, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "frame", Data: pngBytes(t, 8, 8), Source: weapon.SourceStream})
	require.NoError(t, err)
	assert.Empty(t, store.records)
	assert.Empty(t, cache.entries)
}

func TestDetectCacheHitSkipsInference(t *testing.T) {
	m := &fakeModel{detections: []entity.RawDetection{{X1: 1, Y1: 1, X2: 6, Y2: 6, Confidence: 0.5, ClassIndex: 3}}}
	cache := newFakeCache()
	svc := newTestService(serviceDeps{model: m, cache: cache})
	data := pngBytes(t, 8, 8)

	first, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "first.png", Data: data, Source: weapon.SourceUpload})
	require.NoError(t, err)
	require.Len(t, cache.entries, 1)

	second, err := svc.Detect(uploadCtx(), weapon.DetectRequest{Filename: "second.png", Data: data, Source: weapon.SourceUpload})
	require.NoError(t, err)

	assert.Equal(t, 1, m.calls())
	assert.True(t, second.ProcessingInfo.Cached)
	assert.Equal(t, "second.png", second.Filename)
	assert.Equal(t, first.Detections, second.Detections)
	assert.Equal(t, first.ThreatLevel, second.ThreatLevel)
	assert.Equal(t, first.AnnotatedImage, second.AnnotatedImage)
}

func TestWeaponClasses(t *testing.T) {
	svc := newTestService(serviceDeps{model: &fakeModel{}})

	classes := svc.WeaponClasses()
	assert.Equal(t, weapon.WeaponClasses, classes)

	classes[0] = "mutated"
	assert.Equal(t, "automatic_rifle", svc.WeaponClasses()[0])
	assert.True(t, svc.ModelStatus().Loaded)
}
