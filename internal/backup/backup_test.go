package backup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"medtrack/internal/database"
	"medtrack/internal/model"
	"medtrack/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

func setupManagerTest(t *testing.T) (*Manager, *mockS3Client, *store.BackupStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "medtrack.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bs := store.NewBackupStore(db)
	ss := store.NewSettingsStore(db)

	m := NewManager(Config{
		S3:     S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		DBPath: dbPath,
	}, db, bs, ss, slog.New(slog.DiscardHandler))

	mock := newMockS3()
	m.client = mock
	return m, mock, bs
}

func TestManagerStateLifecycle(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	m := NewManager(Config{}, nil, nil, nil, logger)
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}

	m2 := NewManager(Config{
		S3: S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
	}, nil, nil, nil, logger)
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
}

func TestRunNowUploadsEncryptedBackup(t *testing.T) {
	m, mock, bs := setupManagerTest(t)

	id, err := m.RunNow(context.Background(), "passphrase")
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	record, err := bs.GetByID(id)
	if err != nil {
		t.Fatalf("get backup record: %v", err)
	}
	if record.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", record.Status)
	}
	if record.SizeBytes == 0 {
		t.Error("size not recorded")
	}

	mock.mu.Lock()
	data, ok := mock.objects[record.S3Key]
	mock.mu.Unlock()
	if !ok {
		t.Fatal("object not uploaded")
	}

	// Uploaded bytes decrypt back to a readable payload with the passphrase.
	if _, err := Decrypt(data, "passphrase"); err != nil {
		t.Errorf("uploaded object not decryptable: %v", err)
	}
	if _, err := Decrypt(data, "other"); err == nil {
		t.Error("object decryptable with wrong passphrase")
	}

	if m.Status().State != StateIdle || m.Status().LastBackup == nil {
		t.Errorf("status = %+v", m.Status())
	}
}

func TestRunNowRequiresPassphrase(t *testing.T) {
	m, _, _ := setupManagerTest(t)

	if _, err := m.RunNow(context.Background(), ""); err == nil {
		t.Error("expected error without passphrase")
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	m, _, _ := setupManagerTest(t)

	id, err := m.RunNow(context.Background(), "passphrase")
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	body, size, err := m.Download(context.Background(), id)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if int64(len(data)) != size {
		t.Errorf("size = %d, want %d", len(data), size)
	}
}

func TestDownloadUnknownBackup(t *testing.T) {
	m, _, _ := setupManagerTest(t)

	if _, _, err := m.Download(context.Background(), 999); err == nil {
		t.Error("expected error for unknown backup")
	}
}

func TestCleanupRemovesOldBackups(t *testing.T) {
	m, mock, bs := setupManagerTest(t)

	id, err := m.RunNow(context.Background(), "passphrase")
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	record, _ := bs.GetByID(id)

	// Negative retention treats everything as expired.
	if err := m.Cleanup(context.Background(), -1); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	mock.mu.Lock()
	_, stillThere := mock.objects[record.S3Key]
	mock.mu.Unlock()
	if stillThere {
		t.Error("s3 object survived cleanup")
	}

	backups, err := bs.List(10)
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("got %d records after cleanup, want 0", len(backups))
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m, _, _ := setupManagerTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}
