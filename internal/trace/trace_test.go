package trace

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devassist/internal/llmtool"
)

func TestFileSinkAppendRead(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, NewEvent("run/1", "cli", "step", map[string]any{"step": 1})))
	require.NoError(t, s.Append(ctx, NewEvent("run/1", "cli", "answer", nil)))
	require.NoError(t, s.Append(ctx, NewEvent("", "cli", "ignored", nil)))

	evs, err := s.Read("run/1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "step", evs[0].Stage)
	assert.Equal(t, float64(1), evs[0].Fields["step"])
	assert.True(t, evs[1].Terminal())
	assert.Contains(t, s.filePath("run/1"), "run_1.jsonl")

	none, err := s.Read("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, Event) error { return f.err }
func (f failingSink) Close() error                        { return nil }

func TestMultiJoinsErrors(t *testing.T) {
	fs, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	m := Multi{fs, nil, failingSink{errors.New("down")}}
	err = m.Append(context.Background(), NewEvent("r", "", "step", nil))
	assert.EqualError(t, err, "down")
	evs, _ := fs.Read("r")
	assert.Len(t, evs, 1)
	assert.NoError(t, m.Close())
}

type fakeStore struct {
	exists  bool
	made    []string
	objects map[string]string
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.exists = true
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, _ string, key string, r io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[key] = string(data)
	return minio.UploadInfo{Key: key, Size: size}, nil
}

func TestS3SinkUploadsOnTerminalStage(t *testing.T) {
	store := &fakeStore{objects: map[string]string{}}
	s := newS3Sink(store, "traces", "us-east-1")
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, NewEvent("abc", "api", "step", nil)))
	assert.Empty(t, store.objects)
	require.NoError(t, s.Append(ctx, NewEvent("abc", "api", "tool_call", nil)))
	require.NoError(t, s.Append(ctx, NewEvent("abc", "api", "exhausted", nil)))

	body, ok := store.objects["runs/abc.jsonl"]
	require.True(t, ok)
	assert.Equal(t, 3, strings.Count(body, "\n"))
	assert.Equal(t, []string{"traces"}, store.made)

	require.NoError(t, s.Append(ctx, NewEvent("pending", "api", "step", nil)))
	require.NoError(t, s.Close())
	assert.Contains(t, store.objects, "runs/pending.jsonl")
}

func TestObserverWritesStages(t *testing.T) {
	fs, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	obs := NewObserver(fs, NewRunID(), "test", nil)
	ctx := context.Background()
	obs.Observe(ctx, llmtool.Event{Kind: llmtool.EventToolCall, Step: 1, Tool: "read_file", CallID: "c1", Arguments: `{"path":"a"}`})
	obs.Observe(ctx, llmtool.Event{Kind: llmtool.EventAnswer, Step: 2, Text: "done"})

	evs, err := fs.Read(obs.RunID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "tool_call", evs[0].Stage)
	assert.Equal(t, "read_file", evs[0].Fields["tool"])
	assert.Equal(t, "test", evs[0].Source)
	assert.Equal(t, "done", evs[1].Fields["text"])
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(context.Background(), Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, s)

	_, err = NewPostgresSink(context.Background(), " ")
	assert.Error(t, err)
	_, err = NewS3Sink(S3Config{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)
	assert.False(t, S3Config{Endpoint: "x"}.Enabled())
}

func TestNewRunIDUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	assert.Equal(t, "unknown", sanitizeRunID(" "))
}
